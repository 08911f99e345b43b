package badgerstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/store"
	"github.com/taekion-org/tfslite-go/store/badgerstore"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

func openTestStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func buildTx(t *testing.T, payload string) transaction.Transaction {
	t.Helper()
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)
	tx, err := transaction.NewBuilder([]byte(payload), key).Build()
	require.NoError(t, err)
	return tx
}

func TestAddTxAssignsIncreasingOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fileID := uuid.New()

	tx1 := buildTx(t, "first")
	tx2 := buildTx(t, "second")

	require.NoError(t, s.AddTx(ctx, fileID, tx1))
	require.NoError(t, s.AddTx(ctx, fileID, tx2))

	txs, err := s.GetTxs(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, uint64(0), txs[0].Order)
	require.Equal(t, tx1.ID(), txs[0].TxID)
	require.Equal(t, uint64(1), txs[1].Order)
	require.Equal(t, tx2.ID(), txs[1].TxID)
	require.Equal(t, store.StatusLocal, txs[0].Status)
}

func TestGetTxsUnknownFile(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTxs(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNoSuchFile)
}

func TestGetTxBytesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fileID := uuid.New()
	tx := buildTx(t, "payload bytes")

	require.NoError(t, s.AddTx(ctx, fileID, tx))

	raw, err := s.GetTxBytes(ctx, tx.ID())
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var decoded transaction.Transaction
	require.NoError(t, wire.Unmarshal(raw, &decoded))
	require.Equal(t, tx, decoded)
}

func TestGetTxBytesUnknownTransaction(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTxBytes(context.Background(), "nonexistent")
	require.ErrorIs(t, err, store.ErrNoSuchTransaction)
}

func TestUpdateTxSetsSubmitIDAndStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fileID := uuid.New()
	tx := buildTx(t, "payload")

	require.NoError(t, s.AddTx(ctx, fileID, tx))

	submitID := "submit-123"
	status := store.StatusPending
	require.NoError(t, s.UpdateTx(ctx, tx.ID(), &submitID, &status))

	txs, err := s.GetTxs(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "submit-123", txs[0].SubmitID)
	require.Equal(t, store.StatusPending, txs[0].Status)
}

func TestUpdateTxUnknownTransaction(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateTx(context.Background(), "nonexistent", nil, nil)
	require.ErrorIs(t, err, store.ErrNoSuchTransaction)
}

func TestFlushTxsRemovesFileAndTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fileID := uuid.New()
	tx := buildTx(t, "payload")

	require.NoError(t, s.AddTx(ctx, fileID, tx))
	require.NoError(t, s.FlushTxs(ctx, fileID))

	_, err := s.GetTxs(ctx, fileID)
	require.ErrorIs(t, err, store.ErrNoSuchFile)

	_, err = s.GetTxBytes(ctx, tx.ID())
	require.ErrorIs(t, err, store.ErrNoSuchTransaction)

	files, err := s.GetFiles(ctx)
	require.NoError(t, err)
	require.NotContains(t, files, fileID)
}

func TestFlushTxsOnEmptyFileIsNotError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.FlushTxs(context.Background(), uuid.New()))
}

func TestGetFilesListsDistinctFiles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fileA := uuid.New()
	fileB := uuid.New()

	require.NoError(t, s.AddTx(ctx, fileA, buildTx(t, "a")))
	require.NoError(t, s.AddTx(ctx, fileB, buildTx(t, "b")))

	files, err := s.GetFiles(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{fileA, fileB}, files)
}
