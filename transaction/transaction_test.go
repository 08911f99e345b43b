package transaction_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/transaction"
	"github.com/taekion-org/tfslite-go/wire"
)

func TestBuildAndValidateRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("a serialized payload"), key).Build()
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID())
	require.Len(t, tx.ID(), 128)

	var verifier crypto.StandardVerifier
	require.NoError(t, transaction.Validate(tx, verifier))
}

func TestBuildDefaultsBatcherToSigner(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("payload"), key).Build()
	require.NoError(t, err)

	var header transaction.Header
	require.NoError(t, unmarshalHeader(tx.Header, &header))
	require.Equal(t, header.SignerPublicKey, header.BatcherPublicKey)
}

func TestBuildUsesPrefixForInputsOutputs(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("payload"), key).Build()
	require.NoError(t, err)

	var header transaction.Header
	require.NoError(t, unmarshalHeader(tx.Header, &header))
	require.Equal(t, []string{transaction.Prefix}, header.Inputs)
	require.Equal(t, []string{transaction.Prefix}, header.Outputs)
	require.Len(t, transaction.Prefix, 6)
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("original payload"), key).Build()
	require.NoError(t, err)

	tx.Payload = []byte("tampered payload")

	var verifier crypto.StandardVerifier
	err = transaction.Validate(tx, verifier)
	require.Error(t, err)
}

func TestValidateRejectsWrongSigner(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	other, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("payload"), key).Build()
	require.NoError(t, err)

	otherSig, err := other.Sign(tx.Header)
	require.NoError(t, err)
	tx.HeaderSignature = otherSig.AsHex()

	var verifier crypto.StandardVerifier
	err = transaction.Validate(tx, verifier)
	require.Error(t, err)
}

func TestBuildWithDependencies(t *testing.T) {
	key, err := crypto.GenerateRandomKey()
	require.NoError(t, err)

	dep, err := transaction.NewBuilder([]byte("first"), key).Build()
	require.NoError(t, err)

	tx, err := transaction.NewBuilder([]byte("second"), key).
		WithDependencies([]string{dep.ID()}).
		Build()
	require.NoError(t, err)

	var header transaction.Header
	require.NoError(t, unmarshalHeader(tx.Header, &header))
	require.Equal(t, []string{dep.ID()}, header.Dependencies)
}

func unmarshalHeader(data []byte, header *transaction.Header) error {
	return wire.Unmarshal(data, header)
}
