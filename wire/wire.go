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

// Package wire provides the canonical, deterministic encoding used for
// payloads, transaction headers, transactions, batch headers and batches.
// The remote service's actual wire schema is out of scope for this
// module; what matters here is that the same logical value always
// produces the same byte string, since that string is what gets hashed
// and signed.
package wire

import "github.com/fxamacker/cbor/v2"

var (
	encoder cbor.EncMode
	decoder cbor.DecMode
)

func init() {
	encOptions := cbor.CanonicalEncOptions()
	enc, err := encOptions.EncMode()
	if err != nil {
		panic(err)
	}
	encoder = enc

	decOptions := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}
	dec, err := decOptions.DecMode()
	if err != nil {
		panic(err)
	}
	decoder = dec
}

// Marshal returns the canonical encoding of value.
func Marshal(value interface{}) ([]byte, error) {
	return encoder.Marshal(value)
}

// Unmarshal decodes data into value.
func Unmarshal(data []byte, value interface{}) error {
	return decoder.Unmarshal(data, value)
}
