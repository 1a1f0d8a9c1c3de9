package claimpack

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

func TestDecodeClaimPackData(t *testing.T) {
	packID := uuid.New()

	data, err := DecodeClaimPackData(json.RawMessage(`{"packId":"` + packID.String() + `"}`))
	require.NoError(t, err)
	assert.Equal(t, packID, data.PackID)
	assert.Nil(t, data.UserID)
	assert.Equal(t, enums.ClaimPackStepEnsureAccountMinBalance, data.CurrentStep())

	data, err = DecodeClaimPackData(json.RawMessage(`{"packId":"` + packID.String() + `","step":"transfer_pack"}`))
	require.NoError(t, err)
	assert.Equal(t, enums.ClaimPackStepTransferPack, data.CurrentStep())
}

func TestDecodeClaimPackDataRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing pack": `{}`,
		"nil pack":     `{"packId":"00000000-0000-0000-0000-000000000000"}`,
		"unknown step": `{"packId":"` + uuid.NewString() + `","step":"refund"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaimPackData(json.RawMessage(raw))
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
			assert.False(t, pkgerrors.IsRetryable(err))
		})
	}
}

func TestClaimPackDataEncodeOmitsEmptyFields(t *testing.T) {
	packID := uuid.New()
	raw, err := ClaimPackData{PackID: packID}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"packId":"`+packID.String()+`"}`, string(raw))

	_, err = ClaimPackData{}.Encode()
	require.Error(t, err)
}
