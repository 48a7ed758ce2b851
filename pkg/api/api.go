// Package api exposes the job queue and whitelist queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	apphttp "github.com/chainsafe/contract-jobs/pkg/app/http"
	"github.com/chainsafe/contract-jobs/pkg/auth"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/merkle"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

const maxPayloadBytes = 1 << 20

// Jobs enqueues and looks up jobs
type Jobs interface {
	Enqueue(ctx context.Context, kind entity.Kind, payload json.RawMessage) (*dispatcher.Subscription, error)
	GetJob(ctx context.Context, id string) (*entity.Job, error)
}

// Whitelists reads the current whitelist of a contract
type Whitelists interface {
	GetContract(ctx context.Context, id int64) (*entity.Contract, error)
	ListActiveAddresses(ctx context.Context, contractID int64) ([]string, error)
}

// EnqueueResponse is returned by the fire-and-forget enqueue endpoint
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// RootResponse describes a contract's current whitelist root
type RootResponse struct {
	ContractID int64  `json:"contract_id"`
	Root       string `json:"root"`
	Count      int    `json:"count"`
}

// ProofResponse carries the inclusion proof of one address
type ProofResponse struct {
	ContractID int64    `json:"contract_id"`
	Address    string   `json:"address"`
	Root       string   `json:"root"`
	Proof      []string `json:"proof"`
}

// HTTP serves the job and whitelist endpoints
type HTTP struct {
	jobs       Jobs
	whitelists Whitelists
	logger     *zap.Logger
}

// NewRouter builds the full HTTP surface of the dispatcher
func NewRouter(
	cfg *config.Config,
	jobs Jobs,
	whitelists Whitelists,
	validator *auth.JWTValidator,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if cfg.Monitoring.Enabled {
		r.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator, logger))
		RegisterRoutes(r, jobs, whitelists, cfg.Server.RequestTimeout, logger)
	})

	return r
}

// RegisterRoutes registers the /v1 endpoints on r. The websocket stream is
// exempt from the request timeout.
func RegisterRoutes(r chi.Router, jobs Jobs, whitelists Whitelists, timeout time.Duration, logger *zap.Logger) {
	h := &HTTP{
		jobs:       jobs,
		whitelists: whitelists,
		logger:     logger,
	}

	r.Get("/v1/jobs/{kind}/stream", h.stream)

	r.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		r.Post("/v1/jobs/{kind}", apphttp.HandleError(h.enqueue, logger))
		r.Get("/v1/jobs/{id}", apphttp.HandleError(h.getJob, logger))
		r.Get("/v1/contracts/{id}/whitelist/root", apphttp.HandleError(h.whitelistRoot, logger))
		r.Get("/v1/contracts/{id}/whitelist/proof/{address}", apphttp.HandleError(h.whitelistProof, logger))
	})
}

func (h *HTTP) enqueue(w http.ResponseWriter, r *http.Request) error {
	kind, err := parseKind(r)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	payload, err := withTeam(r.Context(), body)
	if err != nil {
		return err
	}

	// the job outlives this request
	sub, err := h.jobs.Enqueue(context.WithoutCancel(r.Context()), kind, payload)
	if err != nil {
		return err
	}
	sub.Close()

	h.writeJSON(w, http.StatusAccepted, &EnqueueResponse{JobID: sub.JobID})
	return nil
}

func (h *HTTP) getJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, job)
	return nil
}

func (h *HTTP) whitelistRoot(w http.ResponseWriter, r *http.Request) error {
	contractID, active, err := h.activeWhitelist(r)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, &RootResponse{
		ContractID: contractID,
		Root:       merkle.Root(active).Hex(),
		Count:      len(active),
	})
	return nil
}

func (h *HTTP) whitelistProof(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		return apperrors.BadRequestError(fmt.Errorf("%w: %s", merkle.ErrInvalidAddress, raw), "invalid address")
	}
	address := common.HexToAddress(raw)

	contractID, active, err := h.activeWhitelist(r)
	if err != nil {
		return err
	}
	proof, err := merkle.Proof(active, address)
	if errors.Is(err, merkle.ErrNotInSet) {
		return apperrors.ResourceNotFoundError(err, "address is not whitelisted")
	}
	if err != nil {
		return apperrors.GeneralError(err)
	}

	steps := make([]string, len(proof))
	for i, p := range proof {
		steps[i] = p.Hex()
	}
	h.writeJSON(w, http.StatusOK, &ProofResponse{
		ContractID: contractID,
		Address:    address.Hex(),
		Root:       merkle.Root(active).Hex(),
		Proof:      steps,
	})
	return nil
}

func (h *HTTP) activeWhitelist(r *http.Request) (int64, []common.Address, error) {
	contractID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || contractID <= 0 {
		return 0, nil, apperrors.BadRequestError(err, "invalid contract id")
	}

	ctx := r.Context()
	if _, err := h.whitelists.GetContract(ctx, contractID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil, apperrors.ResourceNotFoundError(err, "contract not found")
		}
		return 0, nil, apperrors.GeneralError(fmt.Errorf("failed to get contract %d: %w", contractID, err))
	}

	stored, err := h.whitelists.ListActiveAddresses(ctx, contractID)
	if err != nil {
		return 0, nil, apperrors.GeneralError(fmt.Errorf("failed to list whitelist of contract %d: %w", contractID, err))
	}
	active, err := merkle.Normalize(stored)
	if err != nil {
		return 0, nil, apperrors.GeneralError(err)
	}
	return contractID, active, nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func parseKind(r *http.Request) (entity.Kind, error) {
	kind, err := entity.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", apperrors.BadRequestError(err, err.Error())
	}
	return kind, nil
}

// withTeam replaces the payload's team_id with the authenticated team, if any
func withTeam(ctx context.Context, payload []byte) (json.RawMessage, error) {
	teamID, ok := auth.TeamIDFromContext(ctx)
	if !ok {
		return payload, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, apperrors.BadRequestError(err, "payload must be a JSON object")
	}
	team, err := json.Marshal(strconv.FormatInt(teamID, 10))
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	fields["team_id"] = team

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return out, nil
}
