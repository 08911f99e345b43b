package upload_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/store/badgerstore"
	"github.com/taekion-org/tfslite-go/upload"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	nextID   int
	statuses map[string]store.Status
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{statuses: make(map[string]store.Status)}
}

func (f *fakeSubmitter) SubmitTransaction(_ context.Context, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "submit-" + strconv.Itoa(f.nextID)
	f.statuses[id] = store.StatusPending
	return id, nil
}

func (f *fakeSubmitter) GetTransactionStatuses(_ context.Context, submitIDs []string) (map[string]store.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]store.Status, len(submitIDs))
	for _, id := range submitIDs {
		result[id] = f.statuses[id]
	}
	return result, nil
}

func (f *fakeSubmitter) commitAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.statuses {
		f.statuses[id] = store.StatusCommitted
	}
}

func newTestUpload(t *testing.T, fileContents []byte) (*upload.Upload, *fakeSubmitter, store.LocalStateStore) {
	t.Helper()

	dir := t.TempDir()
	filePath := filepath.Join(dir, "testfile.bin")
	require.NoError(t, os.WriteFile(filePath, fileContents, 0o600))

	localStore, err := badgerstore.Open(filepath.Join(dir, "state.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = localStore.Close() })

	signer, err := crypto.GenerateRandomKey()
	require.NoError(t, err)
	batcherKey, err := signer.PublicKey()
	require.NoError(t, err)

	submitter := newFakeSubmitter()
	up := upload.New(filePath, localStore, submitter, signer, batcherKey, zerolog.Nop())
	up.SetChunkSize(16)

	return up, submitter, localStore
}

func TestPrepareStagesExpectedTransactionCount(t *testing.T) {
	ctx := context.Background()
	up, _, localStore := newTestUpload(t, make([]byte, 40))

	var lastProcessed, lastTotal uint64
	require.NoError(t, up.Prepare(ctx, func(processed, total uint64) {
		lastProcessed, lastTotal = processed, total
	}))

	infos, err := localStore.GetTxs(ctx, up.FileID())
	require.NoError(t, err)

	// 40 bytes / 16-byte chunks = 3 append txs, plus deposit+create+seal = 6.
	require.Len(t, infos, 6)
	require.Equal(t, uint64(6), lastProcessed)
	require.Equal(t, uint64(6), lastTotal)

	for i, info := range infos {
		require.Equal(t, uint64(i), info.Order)
		require.Equal(t, store.StatusLocal, info.Status)
	}
}

func TestSendAssignsSubmitIDs(t *testing.T) {
	ctx := context.Background()
	up, _, localStore := newTestUpload(t, make([]byte, 10))
	require.NoError(t, up.Prepare(ctx, nil))

	require.NoError(t, up.Send(ctx, nil))

	infos, err := localStore.GetTxs(ctx, up.FileID())
	require.NoError(t, err)
	for _, info := range infos {
		require.NotEmpty(t, info.SubmitID)
	}
}

func TestWaitFlushesAfterCommit(t *testing.T) {
	ctx := context.Background()
	up, submitter, localStore := newTestUpload(t, make([]byte, 10))
	require.NoError(t, up.Prepare(ctx, nil))
	require.NoError(t, up.Send(ctx, nil))

	submitter.commitAll()

	require.NoError(t, up.Wait(ctx, nil))

	_, err := localStore.GetTxs(ctx, up.FileID())
	require.ErrorIs(t, err, store.ErrNoSuchFile)
}

func TestPrepareHandlesEmptyFile(t *testing.T) {
	ctx := context.Background()
	up, _, localStore := newTestUpload(t, nil)

	var lastTotal uint64
	require.NoError(t, up.Prepare(ctx, func(_, total uint64) { lastTotal = total }))

	infos, err := localStore.GetTxs(ctx, up.FileID())
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, uint64(3), lastTotal)
}
