package keyvault

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	payload string
	err     error
	gotID   string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.gotID = aws.ToString(params.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.payload)}, nil
}

func TestLoad(t *testing.T) {
	api := &fakeSecrets{payload: `{
		"GEOCODER_API_KEYS": {
			"google": [{"key": "g1"}, {"key": "g2"}],
			"bing": [{"key": "b1"}]
		}
	}`}

	v, err := Load(context.Background(), api, "geo-secrets", "GEOCODER_API_KEYS")
	require.NoError(t, err)
	assert.Equal(t, "geo-secrets", api.gotID)
	assert.Equal(t, 2, v.Count("google"))
	assert.Equal(t, 1, v.Count("bing"))

	cred, err := v.Current("google")
	require.NoError(t, err)
	assert.Equal(t, "g1", cred.Key())
}

func TestLoadMissingEntry(t *testing.T) {
	api := &fakeSecrets{payload: `{"OTHER": {}}`}
	_, err := Load(context.Background(), api, "geo-secrets", "GEOCODER_API_KEYS")
	assert.Error(t, err)
}

func TestRotateCyclesPool(t *testing.T) {
	v := NewStatic(map[string][]Credential{
		"google": {{"key": "g1"}, {"key": "g2"}},
	})

	cred, err := v.Current("google")
	require.NoError(t, err)
	assert.Equal(t, "g1", cred.Key())

	cred, err = v.Rotate("google")
	require.NoError(t, err)
	assert.Equal(t, "g2", cred.Key())

	cred, err = v.Rotate("google")
	require.NoError(t, err)
	assert.Equal(t, "g1", cred.Key())
}

func TestRotateSingleKey(t *testing.T) {
	v := NewStatic(map[string][]Credential{"bing": {{"key": "b1"}}})
	cred, err := v.Rotate("bing")
	require.NoError(t, err)
	assert.Equal(t, "b1", cred.Key())
}

func TestUnknownProvider(t *testing.T) {
	v := NewStatic(nil)
	_, err := v.Current("arcgis")
	assert.Error(t, err)
	_, err = v.Rotate("arcgis")
	assert.Error(t, err)
	assert.Zero(t, v.Count("arcgis"))
}

func TestCredentialPairedFields(t *testing.T) {
	v := NewStatic(map[string][]Credential{
		"here": {{"key": "app-code", "client": "app-id"}},
	})
	cred, err := v.Current("here")
	require.NoError(t, err)
	assert.Equal(t, "app-code", cred.Key())
	assert.Equal(t, "app-id", cred["client"])
}
