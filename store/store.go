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

// Package store defines the durable local staging contract a file upload
// is driven through: every transaction built for a file is recorded here
// before it is ever sent over the network, so an interrupted upload can
// resume from whatever the store last knew.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taekion-org/tfslite-go/transaction"
)

// ErrNoSuchFile is returned when an operation references a file identity
// the store has no record of.
var ErrNoSuchFile = errors.New("no such file")

// ErrNoSuchTransaction is returned when an operation references a
// transaction id the store has no record of.
var ErrNoSuchTransaction = errors.New("no such transaction")

// ImplementationError wraps a failure originating in the backend's
// underlying storage engine (badger, IndexedDB, ...).
type ImplementationError struct {
	msg   string
	cause error
}

func (e *ImplementationError) Error() string {
	return fmt.Sprintf("ImplementationError: %s: %v", e.msg, e.cause)
}

func (e *ImplementationError) Unwrap() error { return e.cause }

// NewImplementationError wraps cause as an ImplementationError.
func NewImplementationError(msg string, cause error) error {
	return &ImplementationError{msg: msg, cause: cause}
}

// Status is the lifecycle state of a staged transaction.
type Status uint8

const (
	StatusLocal Status = iota
	StatusQueued
	StatusPending
	StatusCommitted
	StatusUnknown
	StatusInvalid
)

// String renders the wire form of the status, as stored by backends.
func (s Status) String() string {
	switch s {
	case StatusLocal:
		return "LOCAL"
	case StatusQueued:
		return "QUEUED"
	case StatusPending:
		return "PENDING"
	case StatusCommitted:
		return "COMMITTED"
	case StatusUnknown:
		return "UNKNOWN"
	default:
		return "INVALID_STATUS"
	}
}

// ParseStatus parses the wire form of a status. Any value it doesn't
// recognize becomes StatusInvalid, never an error — a corrupt or
// forward-incompatible status string is a data problem, not a call error.
func ParseStatus(value string) Status {
	switch value {
	case "LOCAL":
		return StatusLocal
	case "QUEUED":
		return StatusQueued
	case "PENDING":
		return StatusPending
	case "COMMITTED":
		return StatusCommitted
	case "UNKNOWN":
		return StatusUnknown
	default:
		return StatusInvalid
	}
}

// Info describes a single staged transaction's bookkeeping state.
type Info struct {
	Order    uint64
	TxID     string
	SubmitID string
	Status   Status
}

// LocalStateStore is the durable local staging contract. Implementations
// must make add_tx/update_tx/flush_txs atomic with respect to process
// crashes, and must never require holding a lock across a network call —
// callers snapshot state, release the store, perform I/O, then reacquire
// it to commit the result.
type LocalStateStore interface {
	// GetFiles lists every file identity the store currently has staged
	// transactions for.
	GetFiles(ctx context.Context) ([]uuid.UUID, error)

	// GetTxs lists a file's staged transactions in build order. Returns
	// ErrNoSuchFile if fileID is unknown.
	GetTxs(ctx context.Context, fileID uuid.UUID) ([]Info, error)

	// GetTxBytes returns the canonically-serialized transaction bytes
	// staged under txID. Returns ErrNoSuchTransaction if unknown.
	GetTxBytes(ctx context.Context, txID string) ([]byte, error)

	// UpdateTx updates a staged transaction's submit id and/or status.
	// A nil pointer leaves that field unchanged. Returns
	// ErrNoSuchTransaction if txID is unknown.
	UpdateTx(ctx context.Context, txID string, submitID *string, status *Status) error

	// FlushTxs discards every staged transaction for fileID, including
	// the file's own record. It is not an error to flush a file with no
	// staged transactions.
	FlushTxs(ctx context.Context, fileID uuid.UUID) error

	// AddTx stages tx under fileID, assigning it the next build order for
	// that file (0 for a file's first transaction).
	AddTx(ctx context.Context, fileID uuid.UUID, tx transaction.Transaction) error

	// Close releases the backend's resources.
	Close() error
}
