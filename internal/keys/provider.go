// Package keys provides the CAS-bridge signing key material through an
// injectable provider so tests can substitute deterministic keys.
package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Material is the CAS-bridge key set: an asymmetric signing key, its public
// half, and the key id published to downstream verifiers.
type Material struct {
	PrivateKeyPEM string `json:"private_key_pem"`
	PublicKeyPEM  string `json:"public_key_pem"`
	KeyID         string `json:"key_id"`
}

// Provider supplies key material. Implementations are expected to be safe
// for concurrent use.
type Provider interface {
	Material(ctx context.Context) (Material, error)
}

// ssmAPI is the subset of the SSM client used here, for mocking.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider fetches key material from an SSM parameter once and caches it
// for the life of the process. A failed fetch is retried on the next call.
type SSMProvider struct {
	client    ssmAPI
	parameter string

	mu     sync.Mutex
	cached *Material
}

// NewSSMProvider creates a provider reading the named parameter.
func NewSSMProvider(client *ssm.Client, parameter string) *SSMProvider {
	return &SSMProvider{client: client, parameter: parameter}
}

// NewSSMProviderWithAPI allows injecting a mockable API (used in tests).
func NewSSMProviderWithAPI(client ssmAPI, parameter string) *SSMProvider {
	return &SSMProvider{client: client, parameter: parameter}
}

// Material returns the cached key set, fetching it on first use.
func (p *SSMProvider) Material(ctx context.Context) (Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.parameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Material{}, fmt.Errorf("failed to fetch key parameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Material{}, fmt.Errorf("key parameter %s is empty", p.parameter)
	}

	var m Material
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &m); err != nil {
		return Material{}, fmt.Errorf("failed to decode key parameter: %w", err)
	}
	if m.PrivateKeyPEM == "" || m.KeyID == "" {
		return Material{}, fmt.Errorf("key parameter %s is incomplete", p.parameter)
	}

	p.cached = &m
	return m, nil
}

// Static is a fixed-material provider for tests.
type Static struct {
	M Material
}

// Material returns the fixed key set.
func (s Static) Material(context.Context) (Material, error) {
	return s.M, nil
}
