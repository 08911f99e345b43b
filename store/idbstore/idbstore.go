// Copyright 2024 Taekion Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

//go:build js && wasm

// Package idbstore is the browser LocalStateStore backend: a WebAssembly
// build of this module drives the browser's own IndexedDB through
// syscall/js rather than an embedded engine, since nothing else in the
// page can see a local database. No third-party package wraps IndexedDB
// for Go, so this backend is necessarily built on syscall/js alone.
package idbstore

import (
	"context"
	"fmt"
	"syscall/js"

	"github.com/google/uuid"

	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

const (
	databaseName    = "tfslite"
	databaseVersion = 3

	storeFiles  = "files"
	storeTxInfo = "tx_info"
	storeBytes  = "tx_bytes"
)

// Store is an IndexedDB-backed LocalStateStore, usable only from a
// js/wasm build running inside a browser.
type Store struct {
	db js.Value
}

// Open opens (creating and migrating if necessary) the browser's
// "tfslite" IndexedDB database.
func Open(ctx context.Context) (*Store, error) {
	indexedDB := js.Global().Get("indexedDB")
	if indexedDB.IsUndefined() {
		return nil, store.NewImplementationError("indexedDB not available", fmt.Errorf("window.indexedDB is undefined"))
	}

	request := indexedDB.Call("open", databaseName, databaseVersion)

	request.Set("onupgradeneeded", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		db := args[0].Get("target").Get("result")

		if !db.Call("objectStoreNames").Call("contains", storeFiles).Bool() {
			db.Call("createObjectStore", storeFiles, map[string]interface{}{"keyPath": "file_id"})
		}
		if !db.Call("objectStoreNames").Call("contains", storeTxInfo).Bool() {
			txInfo := db.Call("createObjectStore", storeTxInfo, map[string]interface{}{"keyPath": "tx_id"})
			txInfo.Call("createIndex", "file_id", "file_id")
			txInfo.Call("createIndex", "order", "order")
		}
		if !db.Call("objectStoreNames").Call("contains", storeBytes).Bool() {
			db.Call("createObjectStore", storeBytes)
		}
		return nil
	}))

	db, err := awaitRequest(ctx, request)
	if err != nil {
		return nil, store.NewImplementationError("failed to open IndexedDB database", err)
	}

	return &Store{db: db}, nil
}

// Close implements store.LocalStateStore.
func (s *Store) Close() error {
	s.db.Call("close")
	return nil
}

type fileInfo struct {
	FileID    string `json:"file_id"`
	NextOrder uint64 `json:"next_order"`
}

type txInfoRecord struct {
	Order    uint64 `json:"order"`
	FileID   string `json:"file_id"`
	TxID     string `json:"tx_id"`
	SubmitID string `json:"submit_id"`
	Status   string `json:"status"`
}

func (s *Store) transaction(names []string, mode string) js.Value {
	jsNames := make([]interface{}, len(names))
	for i, n := range names {
		jsNames[i] = n
	}
	return s.db.Call("transaction", js.ValueOf(jsNames), mode)
}

// GetFiles implements store.LocalStateStore.
func (s *Store) GetFiles(ctx context.Context) ([]uuid.UUID, error) {
	txn := s.transaction([]string{storeFiles}, "readonly")
	objStore := txn.Call("objectStore", storeFiles)

	request := objStore.Call("getAll")
	result, err := awaitRequest(ctx, request)
	if err != nil {
		return nil, store.NewImplementationError("failed to list files", err)
	}

	var files []uuid.UUID
	length := result.Length()
	for i := 0; i < length; i++ {
		var info fileInfo
		if err := decodeJSValue(result.Index(i), &info); err != nil {
			return nil, store.NewImplementationError("failed to decode file record", err)
		}
		id, err := uuid.Parse(info.FileID)
		if err != nil {
			return nil, store.NewImplementationError("failed to parse file id", err)
		}
		files = append(files, id)
	}

	return files, nil
}

func (s *Store) getFileInfo(ctx context.Context, objStore js.Value, fileID uuid.UUID) (*fileInfo, error) {
	request := objStore.Call("get", fileID.String())
	result, err := awaitRequest(ctx, request)
	if err != nil {
		return nil, store.NewImplementationError("failed to look up file", err)
	}
	if result.IsUndefined() {
		return nil, nil
	}

	var info fileInfo
	if err := decodeJSValue(result, &info); err != nil {
		return nil, store.NewImplementationError("failed to decode file record", err)
	}
	return &info, nil
}

// GetTxs implements store.LocalStateStore.
func (s *Store) GetTxs(ctx context.Context, fileID uuid.UUID) ([]store.Info, error) {
	filesTxn := s.transaction([]string{storeFiles}, "readonly")
	info, err := s.getFileInfo(ctx, filesTxn.Call("objectStore", storeFiles), fileID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, store.ErrNoSuchFile
	}

	txn := s.transaction([]string{storeTxInfo}, "readonly")
	index := txn.Call("objectStore", storeTxInfo).Call("index", "file_id")
	request := index.Call("getAll", fileID.String())

	result, err := awaitRequest(ctx, request)
	if err != nil {
		return nil, store.NewImplementationError("failed to list transactions", err)
	}

	var results []store.Info
	length := result.Length()
	for i := 0; i < length; i++ {
		var record txInfoRecord
		if err := decodeJSValue(result.Index(i), &record); err != nil {
			return nil, store.NewImplementationError("failed to decode transaction info", err)
		}
		results = append(results, store.Info{
			Order:    record.Order,
			TxID:     record.TxID,
			SubmitID: record.SubmitID,
			Status:   store.ParseStatus(record.Status),
		})
	}

	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j-1].Order > results[j].Order; j-- {
			results[j-1], results[j] = results[j], results[j-1]
		}
	}

	return results, nil
}

// GetTxBytes implements store.LocalStateStore.
func (s *Store) GetTxBytes(ctx context.Context, txID string) ([]byte, error) {
	txn := s.transaction([]string{storeBytes}, "readonly")
	objStore := txn.Call("objectStore", storeBytes)

	request := objStore.Call("get", txID)
	result, err := awaitRequest(ctx, request)
	if err != nil {
		return nil, store.NewImplementationError("failed to read transaction bytes", err)
	}
	if result.IsUndefined() {
		return nil, store.ErrNoSuchTransaction
	}

	length := result.Get("byteLength").Int()
	buf := make([]byte, length)
	js.CopyBytesToGo(buf, js.Global().Get("Uint8Array").New(result))

	return buf, nil
}

// UpdateTx implements store.LocalStateStore.
func (s *Store) UpdateTx(ctx context.Context, txID string, submitID *string, status *store.Status) error {
	txn := s.transaction([]string{storeTxInfo}, "readwrite")
	objStore := txn.Call("objectStore", storeTxInfo)

	request := objStore.Call("get", txID)
	result, err := awaitRequest(ctx, request)
	if err != nil {
		return store.NewImplementationError("failed to look up transaction", err)
	}
	if result.IsUndefined() {
		return store.ErrNoSuchTransaction
	}

	var record txInfoRecord
	if err := decodeJSValue(result, &record); err != nil {
		return store.NewImplementationError("failed to decode transaction info", err)
	}

	if submitID != nil {
		record.SubmitID = *submitID
	}
	if status != nil {
		record.Status = status.String()
	}

	putRequest := objStore.Call("put", encodeJSValue(record))
	if _, err := awaitRequest(ctx, putRequest); err != nil {
		return store.NewImplementationError("failed to update transaction", err)
	}

	return nil
}

// FlushTxs implements store.LocalStateStore.
func (s *Store) FlushTxs(ctx context.Context, fileID uuid.UUID) error {
	txn := s.transaction([]string{storeFiles, storeTxInfo, storeBytes}, "readwrite")
	filesStore := txn.Call("objectStore", storeFiles)
	txInfoStore := txn.Call("objectStore", storeTxInfo)
	bytesStore := txn.Call("objectStore", storeBytes)

	index := txInfoStore.Call("index", "file_id")
	request := index.Call("getAll", fileID.String())
	result, err := awaitRequest(ctx, request)
	if err != nil {
		return store.NewImplementationError("failed to list transactions to flush", err)
	}

	length := result.Length()
	for i := 0; i < length; i++ {
		var record txInfoRecord
		if err := decodeJSValue(result.Index(i), &record); err != nil {
			return store.NewImplementationError("failed to decode transaction info", err)
		}
		if _, err := awaitRequest(ctx, txInfoStore.Call("delete", record.TxID)); err != nil {
			return store.NewImplementationError("failed to delete transaction info", err)
		}
		if _, err := awaitRequest(ctx, bytesStore.Call("delete", record.TxID)); err != nil {
			return store.NewImplementationError("failed to delete transaction bytes", err)
		}
	}

	if _, err := awaitRequest(ctx, filesStore.Call("delete", fileID.String())); err != nil {
		return store.NewImplementationError("failed to delete file record", err)
	}

	return nil
}

// AddTx implements store.LocalStateStore.
func (s *Store) AddTx(ctx context.Context, fileID uuid.UUID, tx transaction.Transaction) error {
	txn := s.transaction([]string{storeFiles, storeTxInfo, storeBytes}, "readwrite")
	filesStore := txn.Call("objectStore", storeFiles)
	txInfoStore := txn.Call("objectStore", storeTxInfo)
	bytesStore := txn.Call("objectStore", storeBytes)

	info, err := s.getFileInfo(ctx, filesStore, fileID)
	if err != nil {
		return err
	}
	if info == nil {
		info = &fileInfo{FileID: fileID.String(), NextOrder: 0}
	}

	record := txInfoRecord{
		Order:    info.NextOrder,
		FileID:   fileID.String(),
		TxID:     tx.ID(),
		SubmitID: "",
		Status:   store.StatusLocal.String(),
	}
	if _, err := awaitRequest(ctx, txInfoStore.Call("add", encodeJSValue(record))); err != nil {
		return store.NewImplementationError("failed to store transaction info", err)
	}

	txBytes, err := wire.Marshal(tx)
	if err != nil {
		return store.NewImplementationError("failed to serialize transaction", err)
	}
	jsBytes := js.Global().Get("Uint8Array").New(len(txBytes))
	js.CopyBytesToJS(jsBytes, txBytes)
	if _, err := awaitRequest(ctx, bytesStore.Call("add", jsBytes, tx.ID())); err != nil {
		return store.NewImplementationError("failed to store transaction bytes", err)
	}

	info.NextOrder++
	if _, err := awaitRequest(ctx, filesStore.Call("put", encodeJSValue(*info))); err != nil {
		return store.NewImplementationError("failed to update file record", err)
	}

	return nil
}
