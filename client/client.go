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

// Package client is the HTTP facade for the remote tfslite service: the
// two endpoints an upload actually drives (transaction submission and
// status polling), the read-only account/build endpoints, and a handful
// of one-shot single-transaction convenience operations built on the
// same payload/transaction/store machinery the upload driver uses.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/payload"
	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

// ErrorType classifies a Client error.
type ErrorType uint8

const (
	ErrInvalidAccount ErrorType = iota
	ErrTransport
	ErrDecode
)

// Error wraps a Client failure.
type Error struct {
	Type  ErrorType
	msg   string
	cause error
}

func (e *Error) Error() string {
	var prefix string
	switch e.Type {
	case ErrInvalidAccount:
		return "InvalidAccountError"
	case ErrTransport:
		prefix = "TransportError"
	case ErrDecode:
		prefix = "DecodeError"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func newTransportError(msg string, cause error) error {
	return &Error{Type: ErrTransport, msg: msg, cause: cause}
}

func newDecodeError(msg string, cause error) error {
	return &Error{Type: ErrDecode, msg: msg, cause: cause}
}

// BuildInfo describes the remote service's build.
type BuildInfo struct {
	CommitHash string `json:"commit_hash"`
}

// AccountBalance is an account's current balance.
type AccountBalance uint64

// FileState is a file's lifecycle state as reported by the remote service.
type FileState string

const (
	FileStateOpen   FileState = "OPEN"
	FileStateSealed FileState = "SEALED"
)

// FileListEntry describes one file owned by an account.
type FileListEntry struct {
	ID          uuid.UUID  `json:"id"`
	State       FileState  `json:"state"`
	Mode        string     `json:"mode"`
	LastUpdated *time.Time `json:"last_updated"`
	Name        *string    `json:"name"`
}

type fileListResponse struct {
	Account string          `json:"account"`
	Files   []FileListEntry `json:"files"`
}

type submitResponse struct {
	SubmitID string `json:"submit_id"`
}

// Client is the HTTP facade over a remote tfslite service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a Client for the service at baseURL.
func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		log:        log,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return newTransportError("failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return newTransportError(fmt.Sprintf("response code: %d, message: %s", resp.StatusCode, string(body)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newDecodeError("failed to decode response body", err)
	}

	return nil
}

// GetBuildInfo fetches the remote service's build information.
func (c *Client) GetBuildInfo(ctx context.Context) (BuildInfo, error) {
	var info BuildInfo
	if err := c.getJSON(ctx, "/build-info", &info); err != nil {
		return BuildInfo{}, err
	}
	return info, nil
}

// GetBatcherPublicKey fetches the service's default batcher public key.
func (c *Client) GetBatcherPublicKey(ctx context.Context) (crypto.PublicKey, error) {
	var data struct {
		BatcherPublicKey string `json:"batcher_public_key"`
	}
	if err := c.getJSON(ctx, "/batcher-public-key", &data); err != nil {
		return crypto.PublicKey{}, err
	}

	key, err := crypto.LoadPublicKeyFromHex(data.BatcherPublicKey)
	if err != nil {
		return crypto.PublicKey{}, newDecodeError("failed to decode batcher public key", err)
	}

	return key, nil
}

// GetAccountBalance fetches account's current balance.
func (c *Client) GetAccountBalance(ctx context.Context, account crypto.PublicKey) (AccountBalance, error) {
	var data struct {
		Balance uint64 `json:"balance"`
	}
	path := fmt.Sprintf("/account/balance/%s", hex.EncodeToString(account.AsBytes()))
	if err := c.getJSON(ctx, path, &data); err != nil {
		return 0, err
	}
	return AccountBalance(data.Balance), nil
}

// GetAccountFiles lists the files owned by account.
func (c *Client) GetAccountFiles(ctx context.Context, account crypto.PublicKey) ([]FileListEntry, error) {
	var resp fileListResponse
	path := fmt.Sprintf("/account/files/%s", hex.EncodeToString(account.AsBytes()))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// SubmitTransaction POSTs the canonically-serialized transaction bytes
// for submission, returning the service-assigned submit id.
func (c *Client) SubmitTransaction(ctx context.Context, txBytes []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/submit", bytes.NewReader(txBytes))
	if err != nil {
		return "", newTransportError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newTransportError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", newTransportError(fmt.Sprintf("response code: %d, message: %s", resp.StatusCode, string(body)), nil)
	}

	var data submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", newDecodeError("failed to decode submit response", err)
	}

	return data.SubmitID, nil
}

// GetTransactionStatuses bulk-polls the status of previously submitted
// transactions, keyed by submit id.
func (c *Client) GetTransactionStatuses(ctx context.Context, submitIDs []string) (map[string]store.Status, error) {
	body, err := json.Marshal(map[string][]string{"submit_ids": submitIDs})
	if err != nil {
		return nil, newTransportError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/status/multiple", bytes.NewReader(body))
	if err != nil {
		return nil, newTransportError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, newTransportError(fmt.Sprintf("response code: %d, message: %s", resp.StatusCode, string(respBody)), nil)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, newDecodeError("failed to decode status response", err)
	}

	result := make(map[string]store.Status, len(raw))
	for submitID, status := range raw {
		result[submitID] = store.ParseStatus(status)
	}

	return result, nil
}

// oneShot builds a single, dependency-free transaction around payload,
// stages it, submits it, and polls until committed, returning once the
// local store has been flushed. It's the shared machinery behind
// DestroyFile, TransferFunds, SetPermission and ClearPermission: all four
// are one-transaction operations with no chunking and no dependency
// chain, so instead of going through Upload they run their own copy of
// the upload driver's submit, poll and resubmit loop for that single
// transaction.
func (c *Client) oneShot(ctx context.Context, id uuid.UUID, localStore store.LocalStateStore, p payload.Payload, signer crypto.Signer, batcherPublicKey crypto.PublicKey) error {
	payloadBytes, err := wire.Marshal(p)
	if err != nil {
		return newTransportError("failed to serialize payload", err)
	}

	tx, err := transaction.NewBuilder(payloadBytes, signer).
		WithBatcherPublicKey(batcherPublicKey).
		Build()
	if err != nil {
		return newTransportError("failed to build transaction", err)
	}

	if err := localStore.AddTx(ctx, id, tx); err != nil {
		return newTransportError("failed to stage transaction", err)
	}

	txBytes, err := localStore.GetTxBytes(ctx, tx.ID())
	if err != nil {
		return newTransportError("failed to read staged transaction", err)
	}

	submitID, err := c.SubmitTransaction(ctx, txBytes)
	if err != nil {
		return err
	}

	if err := localStore.UpdateTx(ctx, tx.ID(), &submitID, nil); err != nil {
		return newTransportError("failed to record submission", err)
	}

	for {
		statuses, err := c.GetTransactionStatuses(ctx, []string{submitID})
		if err != nil {
			return err
		}

		status, ok := statuses[submitID]
		if ok && status == store.StatusCommitted {
			break
		}

		if ok && status == store.StatusUnknown {
			status = store.StatusLocal
		}
		if ok && status == store.StatusLocal {
			newSubmitID, err := c.SubmitTransaction(ctx, txBytes)
			if err != nil {
				return err
			}
			submitID = newSubmitID
			if err := localStore.UpdateTx(ctx, tx.ID(), &submitID, nil); err != nil {
				return newTransportError("failed to record resubmission", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return localStore.FlushTxs(ctx, id)
}

// DestroyFile issues a one-shot FILE_DESTROY transaction for fileID.
func (c *Client) DestroyFile(ctx context.Context, localStore store.LocalStateStore, fileID uuid.UUID, signer crypto.Signer, batcherPublicKey crypto.PublicKey) error {
	p, err := payload.NewBuilder(payload.OpFileDestroy).WithFileID(fileID).Build()
	if err != nil {
		return newTransportError("failed to build payload", err)
	}
	return c.oneShot(ctx, fileID, localStore, p, signer, batcherPublicKey)
}

// TransferFunds issues a one-shot ACCOUNT_TRANSFER transaction.
func (c *Client) TransferFunds(ctx context.Context, localStore store.LocalStateStore, address []byte, amount uint64, signer crypto.Signer, batcherPublicKey crypto.PublicKey) error {
	p, err := payload.NewBuilder(payload.OpAccountTransfer).WithAddress(address).WithAmount(amount).Build()
	if err != nil {
		return newTransportError("failed to build payload", err)
	}
	return c.oneShot(ctx, uuid.New(), localStore, p, signer, batcherPublicKey)
}

// SetPermission issues a one-shot PERMISSION_SET transaction.
func (c *Client) SetPermission(ctx context.Context, localStore store.LocalStateStore, permission payload.Permission, grantee crypto.PublicKey, signer crypto.Signer, batcherPublicKey crypto.PublicKey) error {
	p, err := payload.NewBuilder(payload.OpPermissionSet).
		WithPermission(permission).
		WithPermissionPublicKey(grantee.AsBytes()).
		Build()
	if err != nil {
		return newTransportError("failed to build payload", err)
	}
	return c.oneShot(ctx, uuid.New(), localStore, p, signer, batcherPublicKey)
}

// ClearPermission issues a one-shot PERMISSION_CLEAR transaction.
func (c *Client) ClearPermission(ctx context.Context, localStore store.LocalStateStore, permission payload.Permission, signer crypto.Signer, batcherPublicKey crypto.PublicKey) error {
	p, err := payload.NewBuilder(payload.OpPermissionClear).WithPermission(permission).Build()
	if err != nil {
		return newTransportError("failed to build payload", err)
	}
	return c.oneShot(ctx, uuid.New(), localStore, p, signer, batcherPublicKey)
}

