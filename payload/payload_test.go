package payload_test

import (
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taekion-org/tfslite-go/payload"
)

func TestFileCreateRequiresModeAndFileID(t *testing.T) {
	_, err := payload.NewBuilder(payload.OpFileCreate).Build()
	require.Error(t, err)

	id := uuid.New()
	_, err = payload.NewBuilder(payload.OpFileCreate).WithFileID(id).Build()
	require.Error(t, err)

	p, err := payload.NewBuilder(payload.OpFileCreate).
		WithFileID(id).
		WithMode(payload.FileModeDestroyable).
		WithFilename("report.csv").
		Build()
	require.NoError(t, err)
	require.Equal(t, payload.OpFileCreate, p.Operation)
	require.Equal(t, id[:], p.FileID)
	require.Equal(t, "report.csv", p.Filename)
}

func TestFileAppendComputesSha224(t *testing.T) {
	id := uuid.New()
	data := []byte("some file chunk")

	p, err := payload.NewBuilder(payload.OpFileAppend).
		WithFileID(id).
		WithBlock(data).
		Build()
	require.NoError(t, err)
	require.NotNil(t, p.Block)

	want := sha256.Sum224(data)
	require.Equal(t, want[:], p.Block.Sha224)
	require.Equal(t, data, p.Block.Data)
}

func TestFileAppendMissingBlock(t *testing.T) {
	_, err := payload.NewBuilder(payload.OpFileAppend).WithFileID(uuid.New()).Build()
	require.Error(t, err)
	var mfe *payload.MissingFieldError
	require.ErrorAs(t, err, &mfe)
	require.Equal(t, "block", mfe.Field)
}

func TestFileSealAndDestroyRequireFileID(t *testing.T) {
	_, err := payload.NewBuilder(payload.OpFileSeal).Build()
	require.Error(t, err)

	_, err = payload.NewBuilder(payload.OpFileDestroy).Build()
	require.Error(t, err)

	id := uuid.New()
	p, err := payload.NewBuilder(payload.OpFileSeal).WithFileID(id).Build()
	require.NoError(t, err)
	require.Equal(t, id[:], p.FileID)
}

func TestAccountDepositRequiresAddressAndAmount(t *testing.T) {
	_, err := payload.NewBuilder(payload.OpAccountDeposit).Build()
	require.Error(t, err)

	addr := []byte{1, 2, 3}
	_, err = payload.NewBuilder(payload.OpAccountDeposit).WithAddress(addr).Build()
	require.Error(t, err)

	p, err := payload.NewBuilder(payload.OpAccountDeposit).
		WithAddress(addr).
		WithAmount(100000000).
		Build()
	require.NoError(t, err)
	require.Equal(t, addr, p.Address)
	require.Equal(t, uint64(100000000), p.Amount)
}

func TestPermissionSetRequiresPublicKey(t *testing.T) {
	_, err := payload.NewBuilder(payload.OpPermissionSet).
		WithPermission(payload.PermissionDeposit).
		Build()
	require.Error(t, err)

	p, err := payload.NewBuilder(payload.OpPermissionSet).
		WithPermission(payload.PermissionDeposit).
		WithPermissionPublicKey([]byte{0xAB}).
		Build()
	require.NoError(t, err)
	require.Equal(t, payload.PermissionDeposit, p.Permission)
}

func TestPermissionClearDoesNotRequirePublicKey(t *testing.T) {
	p, err := payload.NewBuilder(payload.OpPermissionClear).
		WithPermission(payload.PermissionBatcher).
		Build()
	require.NoError(t, err)
	require.Equal(t, payload.PermissionBatcher, p.Permission)
	require.Nil(t, p.PermissionPublicKey)
}

func TestTimestampSetRequiresAtLeastOneTimestamp(t *testing.T) {
	id := uuid.New()
	_, err := payload.NewBuilder(payload.OpTimestampSet).WithFileID(id).Build()
	require.Error(t, err)

	p, err := payload.NewBuilder(payload.OpTimestampSet).
		WithFileID(id).
		WithTimestampCreate(1700000000).
		Build()
	require.NoError(t, err)
	require.NotNil(t, p.TimestampCreate)
	require.Nil(t, p.TimestampAppend)
}

func TestPermissionHexEncoding(t *testing.T) {
	require.Equal(t, "00", payload.PermissionUnset.Hex())
	require.Equal(t, "01", payload.PermissionSetPermission.Hex())
	require.Equal(t, "02", payload.PermissionBatcher.Hex())
	require.Equal(t, "03", payload.PermissionDeposit.Hex())
	require.Equal(t, "04", payload.PermissionTimestamp.Hex())
}
