package crypto

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAt(t *testing.T) {
	// Reference request from the exchange's signed endpoint documentation.
	auth := &HMACAuth{
		Key:    "vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	}
	params := url.Values{}
	params.Set("symbol", "LTCBTC")
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", "1")
	params.Set("price", "0.1")

	query := auth.SignAt(params, 5*time.Second, 1499827319559)

	assert.True(t, strings.HasPrefix(query, "price=0.1&quantity=1&recvWindow=5000&side=BUY&symbol=LTCBTC&timeInForce=GTC&timestamp=1499827319559&type=LIMIT&signature="))
	sig := query[strings.LastIndex(query, "=")+1:]
	assert.Len(t, sig, 64)
	assert.Equal(t, hmacSHA256Hex([]byte(auth.Secret), params.Encode()), sig)
	assert.Equal(t, map[string]string{APIKeyHeader: auth.Key}, auth.Headers())
}

func TestSignAtWithoutRecvWindow(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	query := auth.SignAt(nil, 0, 42)
	assert.True(t, strings.HasPrefix(query, "timestamp=42&signature="))
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "xyz"}
	assert.Equal(t, "HMACAuth{key=abcd****, secret=****}", auth.String())
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "hunter2")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", secret)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptSecret("my-api-secret", "")
	assert.Error(t, err)
	_, err = EncryptSecret("  ", "pw")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	secret, err := LoadSecret(SecretConfig{RawSecret: " raw "})
	require.NoError(t, err)
	assert.Equal(t, "raw", secret)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	secret, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", secret)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
