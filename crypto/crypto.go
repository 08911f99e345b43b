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

// Package crypto wraps secp256k1 ECDSA-over-SHA-256 signing behind small
// capability interfaces, so that an in-process private key and an
// out-of-process callback signer (for example a browser-injected wallet)
// can be used interchangeably by the rest of the module.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SigningError wraps a failure to produce a signature.
type SigningError struct {
	msg string
}

func (e *SigningError) Error() string { return fmt.Sprintf("SigningError: %s", e.msg) }

// VerificationError wraps a failure to evaluate a signature.
type VerificationError struct {
	msg string
}

func (e *VerificationError) Error() string { return fmt.Sprintf("VerificationError: %s", e.msg) }

// KeyParseError wraps a failure to parse key material.
type KeyParseError struct {
	msg string
}

func (e *KeyParseError) Error() string { return fmt.Sprintf("KeyParseError: %s", e.msg) }

// SignatureParseError wraps a failure to parse a signature.
type SignatureParseError struct {
	msg string
}

func (e *SignatureParseError) Error() string { return fmt.Sprintf("SignatureParseError: %s", e.msg) }

// signatureSize is the length in bytes of the fixed-length compact
// signature encoding: a 32-byte R value followed by a 32-byte S value,
// with no DER framing and no recovery byte.
const signatureSize = 64

// Signature is a secp256k1 ECDSA signature over SHA-256, serialized as a
// fixed-length 64-byte R || S compact encoding.
type Signature struct {
	bytes []byte
}

// NewSignatureFromHex parses a hex-encoded signature.
func NewSignatureFromHex(value string) (Signature, error) {
	b, err := hex.DecodeString(value)
	if err != nil {
		return Signature{}, &SignatureParseError{msg: err.Error()}
	}
	return Signature{bytes: b}, nil
}

// AsHex returns the lowercase hex encoding of the signature.
func (s Signature) AsHex() string {
	return hex.EncodeToString(s.bytes)
}

// AsBytes returns the raw signature bytes.
func (s Signature) AsBytes() []byte {
	return s.bytes
}

// PublicKey is a secp256k1 public key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// LoadPublicKeyFromBytes loads a public key from its compressed or
// uncompressed serialized form.
func LoadPublicKeyFromBytes(keyBytes []byte) (PublicKey, error) {
	key, err := secp256k1.ParsePubKey(keyBytes)
	if err != nil {
		return PublicKey{}, &KeyParseError{msg: err.Error()}
	}
	return PublicKey{key: key}, nil
}

// LoadPublicKeyFromHex loads a public key from its hex encoding.
func LoadPublicKeyFromHex(keyHex string) (PublicKey, error) {
	b, err := hex.DecodeString(keyHex)
	if err != nil {
		return PublicKey{}, &KeyParseError{msg: err.Error()}
	}
	return LoadPublicKeyFromBytes(b)
}

// AsHex returns the lowercase hex encoding of the compressed public key.
func (p PublicKey) AsHex() string {
	return hex.EncodeToString(p.AsBytes())
}

// AsBytes returns the compressed serialized public key.
func (p PublicKey) AsBytes() []byte {
	return p.key.SerializeCompressed()
}

// Verify checks that signature is a valid secp256k1/SHA-256 signature over
// data by this public key. signature must be the fixed-length 64-byte
// R || S compact encoding produced by PrivateKey.Sign.
func (p PublicKey) Verify(data []byte, signature Signature) (bool, error) {
	if len(signature.bytes) != signatureSize {
		return false, &VerificationError{msg: fmt.Sprintf("signature must be %d bytes, got %d", signatureSize, len(signature.bytes))}
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature.bytes[:32]); overflow {
		return false, &VerificationError{msg: "signature R value overflows the curve order"}
	}
	if overflow := s.SetByteSlice(signature.bytes[32:]); overflow {
		return false, &VerificationError{msg: "signature S value overflows the curve order"}
	}

	sig := ecdsa.NewSignature(&r, &s)
	digest := sha256.Sum256(data)
	return sig.Verify(digest[:], p.key), nil
}

// Verifier checks signatures against a public key supplied at call time.
type Verifier interface {
	Verify(data []byte, signature Signature, publicKey PublicKey) (bool, error)
}

// StandardVerifier verifies secp256k1/SHA-256 signatures using the
// standard library-free decred implementation; it holds no state of its
// own and can be shared across goroutines.
type StandardVerifier struct{}

// Verify implements Verifier.
func (StandardVerifier) Verify(data []byte, signature Signature, publicKey PublicKey) (bool, error) {
	return publicKey.Verify(data, signature)
}

// Signer produces signatures and reports the public key they verify
// against. Implementations may wrap an in-process private key or an
// out-of-process callback (e.g. a browser-injected signer); either way
// a Signer must be safe to copy and pass by value.
type Signer interface {
	Sign(data []byte) (Signature, error)
	PublicKey() (PublicKey, error)
}

// PrivateKey is an in-process secp256k1 private key and implements Signer.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateRandomKey generates a new random private key.
func GenerateRandomKey() (PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, &SigningError{msg: err.Error()}
	}
	return PrivateKey{key: key}, nil
}

// LoadPrivateKeyFromBytes loads a private key from its raw 32-byte form.
func LoadPrivateKeyFromBytes(keyBytes []byte) (PrivateKey, error) {
	if len(keyBytes) != 32 {
		return PrivateKey{}, &KeyParseError{msg: "private key must be 32 bytes"}
	}
	key := secp256k1.PrivKeyFromBytes(keyBytes)
	return PrivateKey{key: key}, nil
}

// LoadPrivateKeyFromHex loads a private key from its hex encoding.
func LoadPrivateKeyFromHex(keyHex string) (PrivateKey, error) {
	b, err := hex.DecodeString(keyHex)
	if err != nil {
		return PrivateKey{}, &KeyParseError{msg: err.Error()}
	}
	return LoadPrivateKeyFromBytes(b)
}

// AsHex returns the hex encoding of the raw private key bytes.
func (p PrivateKey) AsHex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// Sign implements Signer. It signs the SHA-256 digest of data and returns
// a fixed-length 64-byte R || S compact signature, not the variable-length
// DER encoding ecdsa.Sign's own Signature.Serialize would produce.
func (p PrivateKey) Sign(data []byte) (Signature, error) {
	digest := sha256.Sum256(data)
	compact := ecdsa.SignCompact(p.key, digest[:], true)
	// compact[0] is the recovery/compression header byte; the caller
	// always has the signer's public key available separately, so it is
	// dropped and only the fixed-length R || S portion is kept.
	bytes := make([]byte, signatureSize)
	copy(bytes, compact[1:])
	return Signature{bytes: bytes}, nil
}

// PublicKey implements Signer.
func (p PrivateKey) PublicKey() (PublicKey, error) {
	return PublicKey{key: p.key.PubKey()}, nil
}

// CallbackSigner adapts an out-of-process signing callback (for example a
// browser-injected wallet reached over a JS bridge) to the Signer
// interface, so the upload driver never needs to know whether it holds
// key material directly.
type CallbackSigner struct {
	SignFunc      func(data []byte) (Signature, error)
	PublicKeyFunc func() (PublicKey, error)
}

// Sign implements Signer.
func (c CallbackSigner) Sign(data []byte) (Signature, error) {
	return c.SignFunc(data)
}

// PublicKey implements Signer.
func (c CallbackSigner) PublicKey() (PublicKey, error) {
	return c.PublicKeyFunc()
}
