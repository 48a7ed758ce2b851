package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/api"
	"github.com/chainsafe/contract-jobs/pkg/auth"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store/memory"
)

// countingJobs records enqueue attempts without running anything
type countingJobs struct {
	enqueued atomic.Int32
}

func (c *countingJobs) Enqueue(context.Context, entity.Kind, json.RawMessage) (*dispatcher.Subscription, error) {
	c.enqueued.Add(1)
	return nil, errors.New("unexpected enqueue")
}

func (c *countingJobs) GetJob(context.Context, string) (*entity.Job, error) {
	return nil, errors.New("unexpected lookup")
}

func newAuthenticatedServer(t *testing.T, jobs api.Jobs) *httptest.Server {
	t.Helper()
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.JWKS{})
	}))
	t.Cleanup(jwks.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Second},
		Auth:   config.AuthConfig{JWKSURL: jwks.URL},
	}
	validator := auth.NewJWTValidator(cfg.Auth)
	require.True(t, validator.IsConfigured())

	server := httptest.NewServer(api.NewRouter(cfg, jobs, memory.New(), validator, zap.NewNop()))
	t.Cleanup(server.Close)
	return server
}

func TestNewRouter_AnonymousEnqueueRefusedWhenAuthEnabled(t *testing.T) {
	jobs := &countingJobs{}
	server := newAuthenticatedServer(t, jobs)

	resp, err := http.Post(server.URL+"/v1/jobs/call", "application/json",
		strings.NewReader(`{"team_id":"7","method":"transferOwnership","execute":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, jobs.enqueued.Load())
}

func TestNewRouter_AnonymousStreamRefusedWhenAuthEnabled(t *testing.T) {
	jobs := &countingJobs{}
	server := newAuthenticatedServer(t, jobs)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/jobs/call/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, jobs.enqueued.Load())
}

func TestNewRouter_HealthIsPublic(t *testing.T) {
	server := newAuthenticatedServer(t, &countingJobs{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
