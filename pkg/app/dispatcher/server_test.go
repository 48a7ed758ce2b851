package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

func TestOrchestratorOptions(t *testing.T) {
	tests := []struct {
		name    string
		apiURL  string
		want    int
		wantErr bool
	}{
		{name: "uploads disabled", apiURL: "", want: 0},
		{name: "multiaddr", apiURL: "/ip4/127.0.0.1/tcp/5001", want: 1},
		{name: "url", apiURL: "http://ipfs:5001", want: 1},
		{name: "invalid", apiURL: "/ip4/127.0.0.1/udp/5001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&config.Config{Assets: config.AssetsConfig{APIURL: tt.apiURL}})
			opts, err := s.orchestratorOptions(zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, opts, tt.want)
		})
	}
}

func TestRun_NilConfig(t *testing.T) {
	require.Error(t, NewServer(nil).Run())
}
