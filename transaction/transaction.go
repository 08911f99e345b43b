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

// Package transaction builds and validates the signed, hash-linked
// transaction envelope that carries a payload.
package transaction

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/wire"
)

const (
	// FamilyName identifies the transaction family understood by the
	// remote service.
	FamilyName = "tfslite"
	// FamilyVersion is the version of FamilyName this module speaks.
	FamilyVersion = "0.1"
	// NonceSize is the number of random bytes used for a transaction nonce.
	NonceSize = 32
)

// Prefix is the address namespace this family's transactions read and
// write, derived once at package init from hex(SHA-512(FamilyName))[:6].
var Prefix = func() string {
	sum := sha512.Sum512([]byte(FamilyName))
	return hex.EncodeToString(sum[:])[:6]
}()

// Header is the canonically-serialized, signed portion of a transaction.
type Header struct {
	FamilyName      string   `cbor:"1,keyasint"`
	FamilyVersion   string   `cbor:"2,keyasint"`
	SignerPublicKey []byte   `cbor:"3,keyasint"`
	BatcherPublicKey []byte  `cbor:"4,keyasint"`
	Inputs          []string `cbor:"5,keyasint"`
	Outputs         []string `cbor:"6,keyasint"`
	Dependencies    []string `cbor:"7,keyasint"`
	PayloadSha512   []byte   `cbor:"8,keyasint"`
	Nonce           []byte   `cbor:"9,keyasint"`
}

// Transaction is a signed envelope around a serialized payload.
type Transaction struct {
	Header          []byte `cbor:"1,keyasint"`
	HeaderSignature string `cbor:"2,keyasint"`
	Payload         []byte `cbor:"3,keyasint"`
}

// ID returns the transaction's identity, which is its header signature.
func (t Transaction) ID() string {
	return t.HeaderSignature
}

// BuildError wraps a failure to build a transaction.
type BuildError struct {
	msg   string
	cause error
}

func (e *BuildError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("TransactionBuildError: %s: %v", e.msg, e.cause)
	}
	return fmt.Sprintf("TransactionBuildError: %s", e.msg)
}

func (e *BuildError) Unwrap() error { return e.cause }

// ValidationError wraps a failure to validate a transaction.
type ValidationError struct {
	msg   string
	cause error
}

func (e *ValidationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("TransactionValidationError: %s: %v", e.msg, e.cause)
	}
	return fmt.Sprintf("TransactionValidationError: %s", e.msg)
}

func (e *ValidationError) Unwrap() error { return e.cause }

// Builder constructs a Transaction around a serialized payload.
type Builder struct {
	payload          []byte
	signer           crypto.Signer
	batcherPublicKey *crypto.PublicKey
	dependencies     []string
}

// NewBuilder starts a Builder for the given serialized payload, signed by
// signer. By default the transaction is its own batcher (batcherPublicKey
// defaults to the signer's public key) and has no dependencies.
func NewBuilder(payload []byte, signer crypto.Signer) *Builder {
	return &Builder{payload: payload, signer: signer}
}

// WithBatcherPublicKey overrides the default batcher (the signer itself).
func (b *Builder) WithBatcherPublicKey(key crypto.PublicKey) *Builder {
	b.batcherPublicKey = &key
	return b
}

// WithDependencies sets the header signatures of transactions this one
// depends on.
func (b *Builder) WithDependencies(dependencies []string) *Builder {
	b.dependencies = dependencies
	return b
}

// Build produces the signed Transaction.
func (b *Builder) Build() (Transaction, error) {
	signerKey, err := b.signer.PublicKey()
	if err != nil {
		return Transaction{}, &BuildError{msg: "failed to obtain signer public key", cause: err}
	}

	batcherKey := signerKey
	if b.batcherPublicKey != nil {
		batcherKey = *b.batcherPublicKey
	}

	dependencies := b.dependencies
	if dependencies == nil {
		dependencies = []string{}
	}

	payloadSum := sha512.Sum512(b.payload)

	header := Header{
		FamilyName:       FamilyName,
		FamilyVersion:    FamilyVersion,
		SignerPublicKey:  signerKey.AsBytes(),
		BatcherPublicKey: batcherKey.AsBytes(),
		Inputs:           []string{Prefix},
		Outputs:          []string{Prefix},
		Dependencies:     dependencies,
		PayloadSha512:    payloadSum[:],
		Nonce:            make([]byte, NonceSize),
	}

	if _, err := rand.Read(header.Nonce); err != nil {
		return Transaction{}, &BuildError{msg: "failed to generate nonce", cause: err}
	}

	headerBytes, err := wire.Marshal(header)
	if err != nil {
		return Transaction{}, &BuildError{msg: "failed to serialize header", cause: err}
	}

	signature, err := b.signer.Sign(headerBytes)
	if err != nil {
		return Transaction{}, &BuildError{msg: "failed to sign header", cause: err}
	}

	return Transaction{
		Header:          headerBytes,
		HeaderSignature: signature.AsHex(),
		Payload:         b.payload,
	}, nil
}

// Validate checks that a transaction's header signature was produced by
// the header's claimed signer, and that the header's payload digest
// matches the transaction's actual payload.
func Validate(t Transaction, verifier crypto.Verifier) error {
	var header Header
	if err := wire.Unmarshal(t.Header, &header); err != nil {
		return &ValidationError{msg: "failed to parse header", cause: err}
	}

	signerKey, err := crypto.LoadPublicKeyFromBytes(header.SignerPublicKey)
	if err != nil {
		return &ValidationError{msg: "failed to load signer public key", cause: err}
	}

	signature, err := crypto.NewSignatureFromHex(t.HeaderSignature)
	if err != nil {
		return &ValidationError{msg: "failed to parse header signature", cause: err}
	}

	ok, err := verifier.Verify(t.Header, signature, signerKey)
	if err != nil {
		return &ValidationError{msg: "failed to verify header signature", cause: err}
	}
	if !ok {
		return &ValidationError{msg: "header signature verification failed"}
	}

	payloadSum := sha512.Sum512(t.Payload)
	if !bytes.Equal(payloadSum[:], header.PayloadSha512) {
		return &ValidationError{msg: "payload hash does not match header"}
	}

	return nil
}
