package assets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type node struct {
	server *httptest.Server
	added  [][]byte
	names  []string
	status int
}

func newNode(t *testing.T) *node {
	t.Helper()
	n := &node{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		if n.status != http.StatusOK {
			http.Error(w, "node is offline", n.status)
			return
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "true", r.URL.Query().Get("pin"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		n.added = append(n.added, data)
		n.names = append(n.names, header.Filename)

		_ = json.NewEncoder(w).Encode(addResponse{Name: header.Filename, Hash: testCID, Size: "4"})
	})
	mux.HandleFunc("/images/cat.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("meow"))
	})
	n.server = httptest.NewServer(mux)
	t.Cleanup(n.server.Close)
	return n
}

func (n *node) uploader(t *testing.T, gateway string) *IPFS {
	t.Helper()
	u, err := NewIPFS(config.AssetsConfig{APIURL: n.server.URL, GatewayURL: gateway}, zap.NewNop())
	require.NoError(t, err)
	return u
}

func TestUpload_URL(t *testing.T) {
	n := newNode(t)
	u := n.uploader(t, "ipfs://")

	uri, err := u.Upload(context.Background(), n.server.URL+"/images/cat.png")
	require.NoError(t, err)
	require.Equal(t, "ipfs://"+testCID, uri)
	require.Equal(t, [][]byte{[]byte("meow")}, n.added)
	require.Equal(t, []string{"cat.png"}, n.names)
}

func TestUpload_DataURI(t *testing.T) {
	n := newNode(t)
	u := n.uploader(t, "https://gateway.example/ipfs")

	uri, err := u.Upload(context.Background(), "data:image/png;base64,bWVvdw==")
	require.NoError(t, err)
	require.Equal(t, "https://gateway.example/ipfs/"+testCID, uri)

	_, err = u.Upload(context.Background(), "data:text/plain,hello%20world")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("meow"), []byte("hello world")}, n.added)
}

func TestUpload_IPFSReferenceUnchanged(t *testing.T) {
	n := newNode(t)
	u := n.uploader(t, "ipfs://")

	uri, err := u.Upload(context.Background(), "ipfs://"+testCID+"/cat.png")
	require.NoError(t, err)
	require.Equal(t, "ipfs://"+testCID+"/cat.png", uri)
	require.Empty(t, n.added)

	_, err = u.Upload(context.Background(), "ipfs://not-a-cid")
	require.Error(t, err)
}

func TestUpload_Errors(t *testing.T) {
	n := newNode(t)
	u := n.uploader(t, "ipfs://")
	ctx := context.Background()

	_, err := u.Upload(ctx, "cat.png")
	require.ErrorIs(t, err, ErrUnsupportedReference)

	_, err = u.Upload(ctx, "data:image/png;base64,***")
	require.Error(t, err)

	_, err = u.Upload(ctx, n.server.URL+"/images/missing.png")
	require.ErrorContains(t, err, "status 404")

	n.status = http.StatusServiceUnavailable
	_, err = u.Upload(ctx, "data:,x")
	require.ErrorContains(t, err, "node is offline")
}

func TestAPIEndpoint(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{addr: "http://127.0.0.1:5001/", want: "http://127.0.0.1:5001"},
		{addr: "/ip4/127.0.0.1/tcp/5001", want: "http://127.0.0.1:5001"},
		{addr: "/ip6/::1/tcp/5001", want: "http://[::1]:5001"},
		{addr: "/dns4/ipfs.example/tcp/443/https", want: "https://ipfs.example:443"},
		{addr: "/ip4/127.0.0.1/udp/5001", wantErr: true},
		{addr: "/not/a/multiaddr", wantErr: true},
		{addr: "ftp://ipfs.example", wantErr: true},
		{addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := apiEndpoint(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
