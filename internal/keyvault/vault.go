// Package keyvault loads provider API credentials from AWS Secrets Manager
// and hands them out with round-robin rotation.
package keyvault

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Credential is one API key set for a provider. Providers read the fields
// they need: most use only "key", a few carry a paired "client" or "secret".
type Credential map[string]string

// Key returns the primary API key of the credential.
func (c Credential) Key() string { return c["key"] }

// SecretsAPI is the Secrets Manager surface the vault needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Vault holds the credential pools of all providers. Each provider has an
// independent cursor; Rotate advances it so quota errors move the dispatcher
// to the next key.
type Vault struct {
	mu      sync.Mutex
	pools   map[string][]Credential
	cursors map[string]int
}

// Load fetches the named secret and decodes the credential pools stored under
// the given JSON key.
func Load(ctx context.Context, api SecretsAPI, secretName, secretKey string) (*Vault, error) {
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetching secret %s", secretName)
	}
	if out.SecretString == nil {
		return nil, eris.Errorf("secret %s has no string payload", secretName)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*out.SecretString), &envelope); err != nil {
		return nil, eris.Wrapf(err, "decoding secret %s", secretName)
	}
	raw, ok := envelope[secretKey]
	if !ok {
		return nil, eris.Errorf("secret %s has no %s entry", secretName, secretKey)
	}

	return Parse(raw)
}

// Parse decodes a provider-to-credentials map from raw JSON.
func Parse(raw []byte) (*Vault, error) {
	var pools map[string][]Credential
	if err := json.Unmarshal(raw, &pools); err != nil {
		return nil, eris.Wrap(err, "decoding credential pools")
	}
	for provider, pool := range pools {
		zap.L().Debug("loaded credentials",
			zap.String("provider", provider),
			zap.Int("keys", len(pool)),
		)
	}
	return &Vault{pools: pools, cursors: make(map[string]int)}, nil
}

// NewStatic builds a vault from in-memory pools.
func NewStatic(pools map[string][]Credential) *Vault {
	return &Vault{pools: pools, cursors: make(map[string]int)}
}

// Current returns the provider's active credential without advancing the
// cursor.
func (v *Vault) Current(provider string) (Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[provider]
	if !ok || len(pool) == 0 {
		return nil, eris.Errorf("no credentials for provider %s", provider)
	}
	return pool[v.cursors[provider]%len(pool)], nil
}

// Rotate advances to the provider's next credential and returns it. With a
// single key the same credential comes back.
func (v *Vault) Rotate(provider string) (Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[provider]
	if !ok || len(pool) == 0 {
		return nil, eris.Errorf("no credentials for provider %s", provider)
	}
	v.cursors[provider] = (v.cursors[provider] + 1) % len(pool)
	zap.L().Info("rotated credential",
		zap.String("provider", provider),
		zap.Int("slot", v.cursors[provider]),
	)
	return pool[v.cursors[provider]], nil
}

// Count returns the pool size of a provider.
func (v *Vault) Count(provider string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pools[provider])
}
