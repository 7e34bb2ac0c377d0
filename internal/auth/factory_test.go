package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephasgm/safety-sync/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		a, err := NewFromConfig(nil)
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("missing secret file", func(t *testing.T) {
		t.Parallel()
		_, err := NewFromConfig(&config.AuthConfig{
			SecretFile:      filepath.Join(t.TempDir(), "absent"),
			PrivilegedRoles: []string{"admin"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth secret")
	})

	t.Run("secret from file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "secret")
		require.NoError(t, os.WriteFile(path, testSecret, 0600))

		a, err := NewFromConfig(&config.AuthConfig{SecretFile: path, PrivilegedRoles: []string{"admin"}})
		require.NoError(t, err)

		token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "hse-lead", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
		})
		claims, err := a.validator.ValidateToken(t.Context(), token)
		require.NoError(t, err)
		assert.True(t, a.IsPrivileged(identityFromClaims(claims)))
	})
}
