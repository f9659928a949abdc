package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func loadTestConfig(t *testing.T, body string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, LoadConfig(writeConfig(t, body)))
}

func TestLoadConfig_DefaultsAndFile(t *testing.T) {
	loadTestConfig(t, `
log:
  level: debug
subscription:
  resubscribe:
    initial_delay_ms: 250
    max_attempts: 7
`)

	require.Equal(t, "debug", viper.GetString("log.level"))
	require.Equal(t, ":8080", viper.GetString("http.addr"))
	require.Equal(t, CheckpointBackendBolt, viper.GetString("checkpoint.backend"))

	cfg := loadResubscribeConfig()
	require.Equal(t, 250, cfg.InitialDelayMS)
	require.Equal(t, 7, cfg.MaxAttempts)
	require.Equal(t, 1.0, cfg.Multiplier)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BLOCKSUB_LOG_LEVEL", "trace")
	loadTestConfig(t, "log:\n  level: info\n")

	require.Equal(t, "trace", viper.GetString("log.level"))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadNodeConfigs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    []NodeConfig
	}{
		{
			name: "two nodes",
			body: `
nodes:
  - name: mainnet
    url: http://localhost:8545
    poll_interval_ms: 500
  - name: backup
    url: ws://localhost:8546
    dial_retry_jitter: 0.2
`,
			want: []NodeConfig{
				{Name: "mainnet", URL: "http://localhost:8545", PollIntervalMS: 500},
				{Name: "backup", URL: "ws://localhost:8546", DialRetryJitter: 0.2},
			},
		},
		{name: "no nodes", body: "log:\n  level: info\n", wantErr: true},
		{name: "missing url", body: "nodes:\n  - name: mainnet\n", wantErr: true},
		{
			name: "duplicate names",
			body: `
nodes:
  - name: mainnet
    url: http://a:8545
  - name: mainnet
    url: http://b:8545
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loadTestConfig(t, tt.body)

			nodes, err := LoadNodeConfigs(validator.New())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, nodes)
		})
	}
}

func TestInitCheckpointStore_UnknownBackend(t *testing.T) {
	loadTestConfig(t, "checkpoint:\n  backend: etcd\n")

	_, _, err := InitCheckpointStore(noopLogger{}, validator.New(), nil)
	require.Error(t, err)
}

func TestInitCheckpointStore_Bolt(t *testing.T) {
	loadTestConfig(t, "checkpoint:\n  backend: bolt\n  rewind_blocks: 2\n")
	viper.Set("checkpoint.bolt.path", filepath.Join(t.TempDir(), "cp.db"))

	s, closeStore, err := InitCheckpointStore(noopLogger{}, validator.New(), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, closeStore()) }()

	require.NoError(t, s.SaveCheckpoint(t.Context(), "mainnet", 10))
	start, ok := s.GetStartPosition("mainnet")
	require.True(t, ok)
	require.EqualValues(t, 8, start)
}
