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

package idbstore

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"
)

// awaitRequest blocks the calling goroutine until an IndexedDB request
// (an open request, or an object-store get/put/add/delete request)
// settles, returning its result value or the DOM error it failed with.
// IDBRequest is event-based rather than promise-based, so this bridges
// onsuccess/onerror to a channel the goroutine can block on; the Go
// wasm scheduler keeps servicing other goroutines and JS callbacks while
// this one waits.
func awaitRequest(ctx context.Context, request js.Value) (js.Value, error) {
	type outcome struct {
		value js.Value
		err   error
	}
	ch := make(chan outcome, 1)

	var onSuccess, onError js.Func
	onSuccess = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		onSuccess.Release()
		onError.Release()
		ch <- outcome{value: request.Get("result")}
		return nil
	})
	onError = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		onSuccess.Release()
		onError.Release()
		message := "request failed"
		if errVal := request.Get("error"); !errVal.IsUndefined() && !errVal.IsNull() {
			message = errVal.Get("message").String()
		}
		ch <- outcome{err: fmt.Errorf("%s", message)}
		return nil
	})

	request.Set("onsuccess", onSuccess)
	request.Set("onerror", onError)

	select {
	case <-ctx.Done():
		return js.Value{}, ctx.Err()
	case result := <-ch:
		return result.value, result.err
	}
}

// decodeJSValue round-trips a JS value through JSON.stringify and
// encoding/json, since structured records read back from IndexedDB
// arrive as plain JS objects rather than Go structs.
func decodeJSValue(value js.Value, out interface{}) error {
	jsonString := js.Global().Get("JSON").Call("stringify", value).String()
	return json.Unmarshal([]byte(jsonString), out)
}

// encodeJSValue converts a Go struct into a plain JS object suitable for
// passing to an IndexedDB put/add call. The record types use ordinary
// json tags rather than the module's canonical CBOR encoding, since
// IndexedDB object stores and their key-path/index machinery expect
// plain string-keyed JS objects, not a deterministic byte encoding.
func encodeJSValue(value interface{}) js.Value {
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return js.Global().Get("JSON").Call("parse", string(encoded))
}
