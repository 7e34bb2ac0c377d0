package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephasgm/safety-sync/internal/config"
)

func TestDial(t *testing.T) {
	t.Parallel()

	_, err := Dial(&config.RemoteConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.uri is required")

	// the driver does not contact the deployment until the first operation
	client, err := Dial(&config.RemoteConfig{URI: "mongodb://127.0.0.1:1", Database: "safety"})
	require.NoError(t, err)
	require.NoError(t, client.Disconnect(context.Background()))
}

func TestClientOptionsPasswordFileMissing(t *testing.T) {
	t.Parallel()

	_, err := clientOptions(&config.RemoteConfig{
		URI:          "mongodb://127.0.0.1:1",
		Username:     "sync",
		PasswordFile: filepath.Join(t.TempDir(), "absent"),
	})
	require.Error(t, err)
}

func TestConnectGivesUpAfterMaxElapsed(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := Connect(context.Background(), &config.RemoteConfig{
		URI:     "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50",
		Timeout: "100ms",
	}, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to remote store")
	assert.Less(t, time.Since(start), 10*time.Second)
}
