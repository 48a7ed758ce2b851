package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  user: jobs
  password: ${TEST_DB_PASSWORD}
networks:
  Sepolia:
    rpc_url: https://rpc.sepolia.example
    chain_id: 11155111
  polygon:
    rpc_url: https://polygon.example
    chain_id: 137
    rate_limit_rps: 2
queue:
  workers: 8
reconciliation:
  max_attempts: 5
`

func TestParse_AppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "s3cret", cfg.Database.Password)
	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 8, cfg.Queue.Workers)
	require.Equal(t, 500*time.Millisecond, cfg.Queue.InitialDelay)
	require.Equal(t, 5, cfg.Reconciliation.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Reconciliation.BaseBackoff)
	require.Equal(t, 2*time.Minute, cfg.Pipeline.ReceiptTimeout)
	require.GreaterOrEqual(t, cfg.Reconciliation.InitialTimeout, cfg.Pipeline.ReceiptTimeout)
	require.Equal(t, "json", cfg.Logging.Format)

	sepolia, ok := cfg.Network("SEPOLIA")
	require.True(t, ok)
	require.Equal(t, int64(11155111), sepolia.ChainID)
	require.Equal(t, float64(10), sepolia.RateLimitRPS)

	polygon, ok := cfg.Network("polygon")
	require.True(t, ok)
	require.Equal(t, float64(2), polygon.RateLimitRPS)
	require.Equal(t, 20, polygon.RateLimitBurst)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no networks",
			yaml: "database:\n  user: jobs\n",
		},
		{
			name: "missing chain id",
			yaml: "database:\n  user: jobs\nnetworks:\n  local:\n    rpc_url: http://localhost:8545\n",
		},
		{
			name: "missing database user",
			yaml: "networks:\n  local:\n    rpc_url: http://localhost:8545\n    chain_id: 1337\n",
		},
		{
			name: "reconciler grace shorter than receipt wait",
			yaml: "database:\n  user: jobs\nnetworks:\n  local:\n    rpc_url: http://localhost:8545\n    chain_id: 1337\npipeline:\n  receipt_timeout: 5m\nreconciliation:\n  initial_timeout: 1m\n",
		},
		{
			name: "default grace shorter than raised receipt wait",
			yaml: "database:\n  user: jobs\nnetworks:\n  local:\n    rpc_url: http://localhost:8545\n    chain_id: 1337\npipeline:\n  receipt_timeout: 10m\n",
		},
		{
			name: "bad log format",
			yaml: "database:\n  user: jobs\nnetworks:\n  local:\n    rpc_url: http://localhost:8545\n    chain_id: 1337\nlogging:\n  format: xml\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestKeysConfig_Passphrase(t *testing.T) {
	cfg := KeysConfig{PassphraseEnv: "TEST_KEYSTORE_PASS", DefaultPassphrase: "fallback"}
	require.Equal(t, "fallback", cfg.Passphrase())

	t.Setenv("TEST_KEYSTORE_PASS", "from-env")
	require.Equal(t, "from-env", cfg.Passphrase())
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)

	_, err = NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
