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

// Package upload drives a file upload through its three phases: Prepare
// builds and stages the dependency-chained transaction sequence for a
// file, Send submits every staged transaction, and Wait polls until
// they've all committed, resubmitting any that fall back to local.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/payload"
	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

// DefaultChunkSize is the default size, in bytes, of a FILE_APPEND block.
const DefaultChunkSize = 131072

// FileCreateCost is the remote service's file-creation fee. Prepare
// deposits ten times this amount to the uploader's account ahead of
// FILE_CREATE.
const FileCreateCost = 100000000

// Submitter is the subset of the client facade the Send and Wait phases
// need: submitting staged transaction bytes and polling their status.
// Upload depends on this interface rather than *client.Client directly
// so phases can be tested against a fake.
type Submitter interface {
	SubmitTransaction(ctx context.Context, txBytes []byte) (string, error)
	GetTransactionStatuses(ctx context.Context, submitIDs []string) (map[string]store.Status, error)
}

// ProgressFunc reports processed/total progress within a phase.
type ProgressFunc func(processed, total uint64)

// Upload drives a single file's transactions from build through
// commitment. It is not safe for concurrent use by multiple goroutines.
type Upload struct {
	filePath string
	fileID   uuid.UUID
	chunkSize int
	filename string

	store      store.LocalStateStore
	submitter  Submitter
	signer     crypto.Signer
	batcherKey crypto.PublicKey

	log zerolog.Logger
}

// New starts an Upload for filePath, identified by a freshly generated
// file identity.
func New(filePath string, localStore store.LocalStateStore, submitter Submitter, signer crypto.Signer, batcherKey crypto.PublicKey, log zerolog.Logger) *Upload {
	return &Upload{
		filePath:   filePath,
		fileID:     uuid.New(),
		chunkSize:  DefaultChunkSize,
		store:      localStore,
		submitter:  submitter,
		signer:     signer,
		batcherKey: batcherKey,
		log:        log,
	}
}

// FileID returns the upload's file identity.
func (u *Upload) FileID() uuid.UUID { return u.fileID }

// SetChunkSize overrides the default FILE_APPEND block size.
func (u *Upload) SetChunkSize(size int) { u.chunkSize = size }

// SetFilename overrides the filename recorded in FILE_CREATE; by default
// it is the base name of filePath.
func (u *Upload) SetFilename(name string) { u.filename = name }

func (u *Upload) buildTx(p payload.Payload, dependencies []string) (transaction.Transaction, error) {
	payloadBytes, err := wire.Marshal(p)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("failed to serialize payload: %w", err)
	}

	tx, err := transaction.NewBuilder(payloadBytes, u.signer).
		WithBatcherPublicKey(u.batcherKey).
		WithDependencies(dependencies).
		Build()
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	return tx, nil
}

// Prepare builds and stages the file's entire transaction chain:
// ACCOUNT_DEPOSIT, FILE_CREATE, one FILE_APPEND per chunk, then
// FILE_SEAL, each depending on the previous. progress is called after
// each staged transaction with the running total against the chain's
// final length.
func (u *Upload) Prepare(ctx context.Context, progress ProgressFunc) error {
	filename := u.filename
	if filename == "" {
		filename = filepath.Base(u.filePath)
	}

	f, err := os.Open(u.filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	fileSize := uint64(info.Size())

	totalTxs := fileSize / uint64(u.chunkSize)
	if fileSize%uint64(u.chunkSize) > 0 {
		totalTxs++
	}
	totalTxs += 3

	var processedTxs uint64

	signerKey, err := u.signer.PublicKey()
	if err != nil {
		return fmt.Errorf("failed to obtain signer public key: %w", err)
	}

	depositPayload, err := payload.NewBuilder(payload.OpAccountDeposit).
		WithAddress(signerKey.AsBytes()).
		WithAmount(FileCreateCost * 10).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build deposit payload: %w", err)
	}
	depositTx, err := u.buildTx(depositPayload, nil)
	if err != nil {
		return err
	}
	if err := u.store.AddTx(ctx, u.fileID, depositTx); err != nil {
		return fmt.Errorf("failed to stage deposit transaction: %w", err)
	}
	prevTxID := depositTx.ID()

	processedTxs++
	if progress != nil {
		progress(processedTxs, totalTxs)
	}

	createPayload, err := payload.NewBuilder(payload.OpFileCreate).
		WithFileID(u.fileID).
		WithMode(payload.FileModeImmutable).
		WithFilename(filename).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build file-create payload: %w", err)
	}
	createTx, err := u.buildTx(createPayload, []string{prevTxID})
	if err != nil {
		return err
	}
	if err := u.store.AddTx(ctx, u.fileID, createTx); err != nil {
		return fmt.Errorf("failed to stage file-create transaction: %w", err)
	}
	prevTxID = createTx.ID()

	processedTxs++
	if progress != nil {
		progress(processedTxs, totalTxs)
	}

	buffer := make([]byte, u.chunkSize)
	for {
		n, readErr := f.Read(buffer)
		if n > 0 {
			appendPayload, err := payload.NewBuilder(payload.OpFileAppend).
				WithFileID(u.fileID).
				WithBlock(append([]byte(nil), buffer[:n]...)).
				Build()
			if err != nil {
				return fmt.Errorf("failed to build file-append payload: %w", err)
			}
			appendTx, err := u.buildTx(appendPayload, []string{prevTxID})
			if err != nil {
				return err
			}
			if err := u.store.AddTx(ctx, u.fileID, appendTx); err != nil {
				return fmt.Errorf("failed to stage file-append transaction: %w", err)
			}
			prevTxID = appendTx.ID()

			processedTxs++
			if progress != nil {
				progress(processedTxs, totalTxs)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read file: %w", readErr)
		}
	}

	sealPayload, err := payload.NewBuilder(payload.OpFileSeal).WithFileID(u.fileID).Build()
	if err != nil {
		return fmt.Errorf("failed to build file-seal payload: %w", err)
	}
	sealTx, err := u.buildTx(sealPayload, []string{prevTxID})
	if err != nil {
		return err
	}
	if err := u.store.AddTx(ctx, u.fileID, sealTx); err != nil {
		return fmt.Errorf("failed to stage file-seal transaction: %w", err)
	}

	processedTxs++
	if progress != nil {
		progress(processedTxs, totalTxs)
	}

	u.log.Debug().Str("file_id", u.fileID.String()).Uint64("txs", processedTxs).Msg("prepared upload")

	return nil
}

// Send submits every transaction staged for this upload's file in build
// order, recording each submit id as it's assigned.
func (u *Upload) Send(ctx context.Context, progress ProgressFunc) error {
	infos, err := u.store.GetTxs(ctx, u.fileID)
	if err != nil {
		return fmt.Errorf("failed to list staged transactions: %w", err)
	}

	var processed uint64
	total := uint64(len(infos))

	for _, info := range infos {
		submitID, err := u.submitOne(ctx, info.TxID)
		if err != nil {
			return err
		}

		if err := u.store.UpdateTx(ctx, info.TxID, &submitID, nil); err != nil {
			return fmt.Errorf("failed to record submission: %w", err)
		}

		processed++
		if progress != nil {
			progress(processed, total)
		}
	}

	return nil
}

func (u *Upload) submitOne(ctx context.Context, txID string) (string, error) {
	txBytes, err := u.store.GetTxBytes(ctx, txID)
	if err != nil {
		return "", fmt.Errorf("failed to read staged transaction: %w", err)
	}

	submitID, err := u.submitter.SubmitTransaction(ctx, txBytes)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	return submitID, nil
}

// Wait polls transaction status until every staged transaction has
// committed, resubmitting any that drop back to local (lost by the
// service, or never successfully received). It blocks until completion
// or ctx is cancelled, and flushes the file's staged transactions from
// the store once every one has committed.
func (u *Upload) Wait(ctx context.Context, progress ProgressFunc) error {
	infos, err := u.store.GetTxs(ctx, u.fileID)
	if err != nil {
		return fmt.Errorf("failed to list staged transactions: %w", err)
	}
	total := uint64(len(infos))

	var committed uint64
	if progress != nil {
		progress(committed, total)
	}

	for {
		if err := u.updateStatuses(ctx); err != nil {
			return err
		}

		infos, err := u.store.GetTxs(ctx, u.fileID)
		if err != nil {
			return fmt.Errorf("failed to list staged transactions: %w", err)
		}

		var committedThisRound uint64
		var uncommitted int
		for _, info := range infos {
			if info.Status == store.StatusCommitted {
				committedThisRound++
				continue
			}
			uncommitted++

			if info.Status == store.StatusLocal {
				u.log.Debug().Str("tx_id", info.TxID).Msg("resubmitting transaction")
				submitID, err := u.submitOne(ctx, info.TxID)
				if err != nil {
					return err
				}
				if err := u.store.UpdateTx(ctx, info.TxID, &submitID, nil); err != nil {
					return fmt.Errorf("failed to record resubmission: %w", err)
				}
			}
		}

		if committedThisRound > committed {
			committed = committedThisRound
			if progress != nil {
				progress(committed, total)
			}
		}

		if uncommitted == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	if err := u.store.FlushTxs(ctx, u.fileID); err != nil {
		return fmt.Errorf("failed to flush staged transactions: %w", err)
	}

	return nil
}

func (u *Upload) updateStatuses(ctx context.Context) error {
	infos, err := u.store.GetTxs(ctx, u.fileID)
	if err != nil {
		return fmt.Errorf("failed to list staged transactions: %w", err)
	}

	submitToTx := make(map[string]string, len(infos))
	var submitIDs []string
	for _, info := range infos {
		if info.SubmitID == "" {
			continue
		}
		submitToTx[info.SubmitID] = info.TxID
		submitIDs = append(submitIDs, info.SubmitID)
	}
	if len(submitIDs) == 0 {
		return nil
	}

	statuses, err := u.submitter.GetTransactionStatuses(ctx, submitIDs)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction statuses: %w", err)
	}

	for submitID, status := range statuses {
		txID, ok := submitToTx[submitID]
		if !ok {
			continue
		}
		if status == store.StatusUnknown {
			status = store.StatusLocal
		}

		u.log.Debug().Str("tx_id", txID).Str("status", status.String()).Msg("transaction status")
		if err := u.store.UpdateTx(ctx, txID, &submitID, &status); err != nil {
			return fmt.Errorf("failed to update transaction status: %w", err)
		}
	}

	return nil
}
