package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))
	return dir
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")
	dir := writeEnvFile(t, "POSTGRES_CONN=postgres://u:p@localhost:5432/rfq\nMATCH_FANOUT=7\nREAPER_INTERVAL=30s\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@localhost:5432/rfq", cfg.PostgresConn)
	require.Equal(t, 7, cfg.MatchFanout)
	require.Equal(t, 30*time.Second, cfg.ReaperInterval)
	require.Equal(t, "0.0.0.0:8080", cfg.ServerAddress)
	require.Equal(t, 3, cfg.DispatchMaxTries)
	require.Equal(t, "rfq.notifications", cfg.NatsSubjectPrefix)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")
	dir := writeEnvFile(t, "POSTGRES_CONN=postgres://file\nMATCH_RADIUS_KM=10\n")
	t.Setenv("MATCH_RADIUS_KM", "75.5")
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 75.5, cfg.MatchRadiusKm)
	require.Equal(t, "nats://127.0.0.1:4222", cfg.NatsURL)
}

func TestLoadConfigWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "postgres://env-only")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "postgres://env-only", cfg.PostgresConn)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadConfigRequiresConnection(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")

	_, err := LoadConfig(writeEnvFile(t, "MATCH_FANOUT=5\nPOSTGRES_HOST=localhost\nPOSTGRES_DATABASE=rfq\n"))
	require.ErrorContains(t, err, "POSTGRES_CONN is required")
}

func TestLoadConfigRejectsBadFanout(t *testing.T) {
	_, err := LoadConfig(writeEnvFile(t, "POSTGRES_CONN=postgres://x\nMATCH_FANOUT=0\n"))
	require.Error(t, err)
}
