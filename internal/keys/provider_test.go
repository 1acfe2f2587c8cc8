package keys

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	value string
	err   error
	calls int
}

func (f *fakeSSM) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if !aws.ToBool(params.WithDecryption) {
		return nil, assert.AnError
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String(f.value)},
	}, nil
}

func TestSSMProvider_FetchesOnceAndCaches(t *testing.T) {
	api := &fakeSSM{value: `{"private_key_pem":"PRIV","public_key_pem":"PUB","key_id":"kid-1"}`}
	p := NewSSMProviderWithAPI(api, "/libreone/cas-bridge-key")

	first, err := p.Material(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kid-1", first.KeyID)
	assert.Equal(t, "PRIV", first.PrivateKeyPEM)

	second, err := p.Material(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.calls)
}

func TestSSMProvider_FailedFetchRetries(t *testing.T) {
	api := &fakeSSM{err: assert.AnError}
	p := NewSSMProviderWithAPI(api, "/libreone/cas-bridge-key")

	_, err := p.Material(context.Background())
	require.Error(t, err)

	api.err = nil
	api.value = `{"private_key_pem":"PRIV","public_key_pem":"PUB","key_id":"kid-1"}`

	m, err := p.Material(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kid-1", m.KeyID)
	assert.Equal(t, 2, api.calls)
}

func TestSSMProvider_RejectsIncompleteMaterial(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "garbage"},
		{name: "missing private key", value: `{"key_id":"kid-1"}`},
		{name: "missing key id", value: `{"private_key_pem":"PRIV"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSSMProviderWithAPI(&fakeSSM{value: tt.value}, "/libreone/cas-bridge-key")
			_, err := p.Material(context.Background())
			assert.Error(t, err)
		})
	}
}
