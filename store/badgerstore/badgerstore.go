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

// Package badgerstore is the native LocalStateStore backend, an embedded
// badger database used by non-browser builds of this module. Badger has
// no notion of separate tables or multimaps, so the four logical
// mappings the store needs are emulated with key prefixes over a single
// key space.
package badgerstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

const (
	prefixFile    = 'F' // file id (16 bytes)                 -> next order (8 bytes BE)
	prefixFileTx  = 'T' // file id (16 bytes) + order (8 BE)  -> tx id
	prefixTxInfo  = 'I' // tx id                               -> cbor(txInfoRecord)
	prefixTxBytes = 'B' // tx id                               -> zstd(wire(transaction))
)

// DefaultOptions returns the badger options used for the local staging
// database: a small, short-lived store compared to a chain index, so the
// teacher's large-index tuning is scaled down accordingly.
func DefaultOptions(dir string) badger.Options {
	return badger.DefaultOptions(dir).
		WithMaxTableSize(16 << 20).
		WithValueLogFileSize(16 << 20).
		WithTableLoadingMode(options.FileIO).
		WithValueLogLoadingMode(options.FileIO).
		WithNumMemtables(1).
		WithKeepL0InMemory(false).
		WithCompactL0OnClose(true).
		WithNumLevelZeroTables(1).
		WithNumLevelZeroTablesStall(2).
		WithLoadBloomsOnOpen(false).
		WithLogger(nil)
}

// Store is a badger-backed LocalStateStore.
type Store struct {
	db          *badger.DB
	compressor  *zstd.Encoder
	decompressor *zstd.Decoder
	log         zerolog.Logger
}

// Open opens (creating if necessary) a badger database at dir as a
// LocalStateStore.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	db, err := badger.Open(DefaultOptions(dir))
	if err != nil {
		return nil, store.NewImplementationError("failed to open badger database", err)
	}

	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, store.NewImplementationError("failed to initialize compressor", err)
	}

	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, store.NewImplementationError("failed to initialize decompressor", err)
	}

	return &Store{db: db, compressor: compressor, decompressor: decompressor, log: log}, nil
}

// Close implements store.LocalStateStore.
func (s *Store) Close() error {
	s.compressor.Close()
	s.decompressor.Close()
	if err := s.db.Close(); err != nil {
		return store.NewImplementationError("failed to close badger database", err)
	}
	return nil
}

type txInfoRecord struct {
	Order    uint64 `cbor:"1,keyasint"`
	SubmitID string `cbor:"2,keyasint"`
	Status   string `cbor:"3,keyasint"`
}

func fileKey(fileID uuid.UUID) []byte {
	key := make([]byte, 1+16)
	key[0] = prefixFile
	copy(key[1:], fileID[:])
	return key
}

func fileTxKeyPrefix(fileID uuid.UUID) []byte {
	key := make([]byte, 1+16)
	key[0] = prefixFileTx
	copy(key[1:], fileID[:])
	return key
}

func fileTxKey(fileID uuid.UUID, order uint64) []byte {
	key := make([]byte, 1+16+8)
	key[0] = prefixFileTx
	copy(key[1:17], fileID[:])
	binary.BigEndian.PutUint64(key[17:], order)
	return key
}

func txInfoKey(txID string) []byte {
	return append([]byte{prefixTxInfo}, []byte(txID)...)
}

func txBytesKey(txID string) []byte {
	return append([]byte{prefixTxBytes}, []byte(txID)...)
}

// GetFiles implements store.LocalStateStore.
func (s *Store) GetFiles(_ context.Context) ([]uuid.UUID, error) {
	var results []uuid.UUID

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixFile}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			id, err := uuid.FromBytes(key[1:])
			if err != nil {
				return fmt.Errorf("failed to decode file id: %w", err)
			}
			results = append(results, id)
		}
		return nil
	})
	if err != nil {
		return nil, store.NewImplementationError("failed to list files", err)
	}

	return results, nil
}

func (s *Store) checkHasFile(txn *badger.Txn, fileID uuid.UUID) error {
	_, err := txn.Get(fileKey(fileID))
	if err == badger.ErrKeyNotFound {
		return store.ErrNoSuchFile
	}
	if err != nil {
		return store.NewImplementationError("failed to look up file", err)
	}
	return nil
}

// GetTxs implements store.LocalStateStore.
func (s *Store) GetTxs(_ context.Context, fileID uuid.UUID) ([]store.Info, error) {
	var results []store.Info

	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.checkHasFile(txn, fileID); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = fileTxKeyPrefix(fileID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			var txID string
			if err := it.Item().Value(func(val []byte) error {
				txID = string(val)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to read file tx entry: %w", err)
			}

			info, err := s.getTxInfo(txn, txID)
			if err != nil {
				return err
			}
			results = append(results, info)
		}
		return nil
	})
	if err != nil {
		return nil, wrapIfNotSentinel(err, "failed to list transactions")
	}

	return results, nil
}

func (s *Store) getTxInfo(txn *badger.Txn, txID string) (store.Info, error) {
	item, err := txn.Get(txInfoKey(txID))
	if err == badger.ErrKeyNotFound {
		return store.Info{}, store.ErrNoSuchTransaction
	}
	if err != nil {
		return store.Info{}, store.NewImplementationError("failed to look up transaction info", err)
	}

	var record txInfoRecord
	if err := item.Value(func(val []byte) error {
		return wire.Unmarshal(val, &record)
	}); err != nil {
		return store.Info{}, store.NewImplementationError("failed to decode transaction info", err)
	}

	return store.Info{
		Order:    record.Order,
		TxID:     txID,
		SubmitID: record.SubmitID,
		Status:   store.ParseStatus(record.Status),
	}, nil
}

// GetTxBytes implements store.LocalStateStore.
func (s *Store) GetTxBytes(_ context.Context, txID string) ([]byte, error) {
	var result []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txBytesKey(txID))
		if err == badger.ErrKeyNotFound {
			return store.ErrNoSuchTransaction
		}
		if err != nil {
			return store.NewImplementationError("failed to look up transaction bytes", err)
		}

		return item.Value(func(val []byte) error {
			decoded, err := s.decompressor.DecodeAll(val, nil)
			if err != nil {
				return store.NewImplementationError("failed to decompress transaction bytes", err)
			}
			result = decoded
			return nil
		})
	})
	if err != nil {
		return nil, wrapIfNotSentinel(err, "failed to read transaction bytes")
	}

	return result, nil
}

// UpdateTx implements store.LocalStateStore.
func (s *Store) UpdateTx(_ context.Context, txID string, submitID *string, status *store.Status) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		info, err := s.getTxInfo(txn, txID)
		if err != nil {
			return err
		}

		record := txInfoRecord{
			Order:    info.Order,
			SubmitID: info.SubmitID,
			Status:   info.Status.String(),
		}

		if submitID != nil {
			record.SubmitID = *submitID
		}
		if status != nil {
			record.Status = status.String()
		}

		encoded, err := wire.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode transaction info: %w", err)
		}

		return txn.Set(txInfoKey(txID), encoded)
	})
	if err != nil {
		return wrapIfNotSentinel(err, "failed to update transaction")
	}

	return nil
}

// FlushTxs implements store.LocalStateStore.
func (s *Store) FlushTxs(_ context.Context, fileID uuid.UUID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = fileTxKeyPrefix(fileID)
		it := txn.NewIterator(opts)

		var txIDs []string
		var fileTxKeys [][]byte
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			fileTxKeys = append(fileTxKeys, it.Item().KeyCopy(nil))
			if err := it.Item().Value(func(val []byte) error {
				txIDs = append(txIDs, string(val))
				return nil
			}); err != nil {
				it.Close()
				return fmt.Errorf("failed to read file tx entry: %w", err)
			}
		}
		it.Close()

		for _, txID := range txIDs {
			if err := txn.Delete(txInfoKey(txID)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("failed to delete transaction info: %w", err)
			}
			if err := txn.Delete(txBytesKey(txID)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("failed to delete transaction bytes: %w", err)
			}
		}
		for _, key := range fileTxKeys {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("failed to delete file tx entry: %w", err)
			}
		}

		if err := txn.Delete(fileKey(fileID)); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to delete file record: %w", err)
		}

		return nil
	})
	if err != nil {
		return store.NewImplementationError("failed to flush transactions", err)
	}

	return nil
}

// AddTx implements store.LocalStateStore.
func (s *Store) AddTx(_ context.Context, fileID uuid.UUID, tx transaction.Transaction) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var nextOrder uint64
		item, err := txn.Get(fileKey(fileID))
		switch {
		case err == badger.ErrKeyNotFound:
			nextOrder = 0
		case err != nil:
			return fmt.Errorf("failed to look up file record: %w", err)
		default:
			if err := item.Value(func(val []byte) error {
				nextOrder = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to read file record: %w", err)
			}
		}

		counter := make([]byte, 8)
		binary.BigEndian.PutUint64(counter, nextOrder+1)
		if err := txn.Set(fileKey(fileID), counter); err != nil {
			return fmt.Errorf("failed to update file record: %w", err)
		}

		if err := txn.Set(fileTxKey(fileID, nextOrder), []byte(tx.ID())); err != nil {
			return fmt.Errorf("failed to record file tx entry: %w", err)
		}

		record := txInfoRecord{Order: nextOrder, SubmitID: "", Status: store.StatusLocal.String()}
		encoded, err := wire.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode transaction info: %w", err)
		}
		if err := txn.Set(txInfoKey(tx.ID()), encoded); err != nil {
			return fmt.Errorf("failed to store transaction info: %w", err)
		}

		txBytes, err := wire.Marshal(tx)
		if err != nil {
			return fmt.Errorf("failed to serialize transaction: %w", err)
		}
		if err := txn.Set(txBytesKey(tx.ID()), s.compressor.EncodeAll(txBytes, nil)); err != nil {
			return fmt.Errorf("failed to store transaction bytes: %w", err)
		}

		return nil
	})
	if err != nil {
		return store.NewImplementationError("failed to add transaction", err)
	}

	s.log.Debug().Str("file_id", fileID.String()).Str("tx_id", tx.ID()).Msg("staged transaction")

	return nil
}

func wrapIfNotSentinel(err error, msg string) error {
	if err == store.ErrNoSuchFile || err == store.ErrNoSuchTransaction {
		return err
	}
	return store.NewImplementationError(msg, err)
}
