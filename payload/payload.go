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

// Package payload builds the typed operation record carried inside a
// transaction, enforcing the required fields for each operation kind.
package payload

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// Operation identifies the kind of mutation a Payload carries.
type Operation uint8

const (
	OpFileCreate Operation = iota + 1
	OpFileAppend
	OpFileSeal
	OpFileDestroy
	OpAccountDeposit
	OpAccountTransfer
	OpPermissionSet
	OpPermissionClear
	OpTimestampSet
)

// FileMode controls whether a file can later be destroyed.
type FileMode uint8

const (
	FileModeDestroyable FileMode = iota + 1
	FileModeImmutable
)

func (m FileMode) String() string {
	switch m {
	case FileModeDestroyable:
		return "DESTROYABLE"
	case FileModeImmutable:
		return "IMMUTABLE"
	default:
		return "UNKNOWN"
	}
}

// Permission identifies a grantable capability.
type Permission uint8

const (
	PermissionUnset Permission = iota
	PermissionSetPermission
	PermissionBatcher
	PermissionDeposit
	PermissionTimestamp
)

// Hex returns the two-hex-digit encoding of the permission, used for
// human-readable debug output; the wire encoding carries the integer value.
func (p Permission) Hex() string {
	return fmt.Sprintf("%02x", uint8(p))
}

// DataBlock is a chunk of file data together with its integrity digest.
// Sha224 must always equal SHA-224(Data); the builder computes it, callers
// never supply it directly.
type DataBlock struct {
	Data   []byte `cbor:"1,keyasint"`
	Sha224 []byte `cbor:"2,keyasint"`
}

// Payload is the tagged-union operation record carried by a transaction.
type Payload struct {
	Operation Operation `cbor:"1,keyasint"`

	FileID   []byte     `cbor:"2,keyasint,omitempty"`
	Mode     FileMode   `cbor:"3,keyasint,omitempty"`
	Filename string     `cbor:"4,keyasint,omitempty"`
	Block    *DataBlock `cbor:"5,keyasint,omitempty"`

	Address []byte `cbor:"6,keyasint,omitempty"`
	Amount  uint64 `cbor:"7,keyasint,omitempty"`

	Permission          Permission `cbor:"8,keyasint,omitempty"`
	PermissionPublicKey []byte     `cbor:"9,keyasint,omitempty"`

	TimestampCreate *int64 `cbor:"10,keyasint,omitempty"`
	TimestampAppend *int64 `cbor:"11,keyasint,omitempty"`
	TimestampSeal   *int64 `cbor:"12,keyasint,omitempty"`
}

// MissingFieldError reports a required field that was not set before build.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("MissingField: field '%s' is required", e.Field)
}

// Builder constructs a Payload for a single operation kind, validating
// that operation's required fields at Build time.
type Builder struct {
	operation Operation
	fileID    *uuid.UUID
	mode      *FileMode
	block     []byte
	filename  *string

	address *[]byte
	amount  *uint64

	permission          *Permission
	permissionPublicKey *[]byte

	timestampCreate *int64
	timestampAppend *int64
	timestampSeal   *int64
}

// NewBuilder starts a Builder for the given operation.
func NewBuilder(operation Operation) *Builder {
	return &Builder{operation: operation}
}

// WithFileID sets the file identity for file-scoped operations.
func (b *Builder) WithFileID(fileID uuid.UUID) *Builder {
	b.fileID = &fileID
	return b
}

// WithMode sets the file mode for FILE_CREATE.
func (b *Builder) WithMode(mode FileMode) *Builder {
	b.mode = &mode
	return b
}

// WithBlock sets the raw chunk data for FILE_APPEND; the block's SHA-224
// digest is computed by Build, not supplied by the caller.
func (b *Builder) WithBlock(data []byte) *Builder {
	b.block = data
	return b
}

// WithFilename sets the optional filename for FILE_CREATE.
func (b *Builder) WithFilename(filename string) *Builder {
	b.filename = &filename
	return b
}

// WithAddress sets the account address for ACCOUNT_DEPOSIT/ACCOUNT_TRANSFER.
func (b *Builder) WithAddress(address []byte) *Builder {
	b.address = &address
	return b
}

// WithAmount sets the amount for ACCOUNT_DEPOSIT/ACCOUNT_TRANSFER.
func (b *Builder) WithAmount(amount uint64) *Builder {
	b.amount = &amount
	return b
}

// WithPermission sets the permission for PERMISSION_SET/PERMISSION_CLEAR.
func (b *Builder) WithPermission(permission Permission) *Builder {
	b.permission = &permission
	return b
}

// WithPermissionPublicKey sets the grantee public key for PERMISSION_SET.
func (b *Builder) WithPermissionPublicKey(publicKey []byte) *Builder {
	b.permissionPublicKey = &publicKey
	return b
}

// WithTimestampCreate sets the create timestamp for TIMESTAMP_SET.
func (b *Builder) WithTimestampCreate(ts int64) *Builder {
	b.timestampCreate = &ts
	return b
}

// WithTimestampAppend sets the append timestamp for TIMESTAMP_SET.
func (b *Builder) WithTimestampAppend(ts int64) *Builder {
	b.timestampAppend = &ts
	return b
}

// WithTimestampSeal sets the seal timestamp for TIMESTAMP_SET.
func (b *Builder) WithTimestampSeal(ts int64) *Builder {
	b.timestampSeal = &ts
	return b
}

// Build validates required fields for the builder's operation and returns
// the resulting Payload.
func (b *Builder) Build() (Payload, error) {
	p := Payload{Operation: b.operation}

	switch b.operation {
	case OpFileCreate:
		if b.fileID == nil {
			return Payload{}, &MissingFieldError{Field: "file_id"}
		}
		p.FileID = b.fileID[:]

		if b.mode == nil {
			return Payload{}, &MissingFieldError{Field: "mode"}
		}
		p.Mode = *b.mode

		if b.filename != nil {
			p.Filename = *b.filename
		}

	case OpFileAppend:
		if b.fileID == nil {
			return Payload{}, &MissingFieldError{Field: "file_id"}
		}
		p.FileID = b.fileID[:]

		if b.block == nil {
			return Payload{}, &MissingFieldError{Field: "block"}
		}
		sum := sha256.Sum224(b.block)
		p.Block = &DataBlock{Data: b.block, Sha224: sum[:]}

	case OpFileSeal, OpFileDestroy:
		if b.fileID == nil {
			return Payload{}, &MissingFieldError{Field: "file_id"}
		}
		p.FileID = b.fileID[:]

	case OpAccountDeposit, OpAccountTransfer:
		if b.address == nil {
			return Payload{}, &MissingFieldError{Field: "address"}
		}
		p.Address = *b.address

		if b.amount == nil {
			return Payload{}, &MissingFieldError{Field: "amount"}
		}
		p.Amount = *b.amount

	case OpPermissionSet:
		if b.permission == nil {
			return Payload{}, &MissingFieldError{Field: "permission"}
		}
		p.Permission = *b.permission

		if b.permissionPublicKey == nil {
			return Payload{}, &MissingFieldError{Field: "permission_public_key"}
		}
		p.PermissionPublicKey = *b.permissionPublicKey

	case OpPermissionClear:
		if b.permission == nil {
			return Payload{}, &MissingFieldError{Field: "permission"}
		}
		p.Permission = *b.permission

	case OpTimestampSet:
		if b.fileID == nil {
			return Payload{}, &MissingFieldError{Field: "file_id"}
		}
		p.FileID = b.fileID[:]

		if b.timestampCreate == nil && b.timestampAppend == nil && b.timestampSeal == nil {
			return Payload{}, &MissingFieldError{Field: "timestamp_create, timestamp_append, or timestamp_seal"}
		}
		p.TimestampCreate = b.timestampCreate
		p.TimestampAppend = b.timestampAppend
		p.TimestampSeal = b.timestampSeal

	default:
		return Payload{}, fmt.Errorf("unknown operation %d", b.operation)
	}

	return p, nil
}
