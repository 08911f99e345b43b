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

// Package batch groups one or more transactions under a single batcher
// signature. Nothing else in this module submits batches: the client and
// the upload driver post individual transactions.
package batch

import (
	"fmt"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

// Header is the canonically-serialized, signed portion of a batch.
type Header struct {
	SignerPublicKey []byte   `cbor:"1,keyasint"`
	TransactionIDs  []string `cbor:"2,keyasint"`
}

// Batch bundles one or more transactions under a single batcher signature.
type Batch struct {
	Header          []byte                    `cbor:"1,keyasint"`
	HeaderSignature string                    `cbor:"2,keyasint"`
	Transactions    []transaction.Transaction `cbor:"3,keyasint"`
}

// BuildError wraps a failure to build a batch.
type BuildError struct {
	msg   string
	cause error
}

func (e *BuildError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("BatchBuildError: %s: %v", e.msg, e.cause)
	}
	return fmt.Sprintf("BatchBuildError: %s", e.msg)
}

func (e *BuildError) Unwrap() error { return e.cause }

// Builder constructs a Batch from an ordered list of transactions, signed
// by the batcher.
type Builder struct {
	transactions []transaction.Transaction
	batcher      crypto.Signer
}

// NewBuilder starts a Builder for the given transactions, signed by
// batcher. The batch must contain at least one transaction.
func NewBuilder(transactions []transaction.Transaction, batcher crypto.Signer) *Builder {
	return &Builder{transactions: transactions, batcher: batcher}
}

// Build produces the signed Batch.
func (b *Builder) Build() (Batch, error) {
	if len(b.transactions) == 0 {
		return Batch{}, &BuildError{msg: "batch must contain at least one transaction"}
	}

	batcherKey, err := b.batcher.PublicKey()
	if err != nil {
		return Batch{}, &BuildError{msg: "failed to obtain batcher public key", cause: err}
	}

	ids := make([]string, len(b.transactions))
	for i, tx := range b.transactions {
		ids[i] = tx.ID()
	}

	header := Header{
		SignerPublicKey: batcherKey.AsBytes(),
		TransactionIDs:  ids,
	}

	headerBytes, err := wire.Marshal(header)
	if err != nil {
		return Batch{}, &BuildError{msg: "failed to serialize header", cause: err}
	}

	signature, err := b.batcher.Sign(headerBytes)
	if err != nil {
		return Batch{}, &BuildError{msg: "failed to sign header", cause: err}
	}

	return Batch{
		Header:          headerBytes,
		HeaderSignature: signature.AsHex(),
		Transactions:    b.transactions,
	}, nil
}
