package reconciler_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/chain/chaintest"
	"github.com/chainsafe/contract-jobs/pkg/chain/mocks"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
	"github.com/chainsafe/contract-jobs/pkg/reconciler"
	"github.com/chainsafe/contract-jobs/pkg/store/memory"
)

const network = "sepolia"

func reconcileConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		BatchSize:   10,
		ClaimTTL:    time.Minute,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	}
}

type fixture struct {
	gw       *chaintest.Gateway
	store    *memory.Store
	pipeline *pipeline.Pipeline
	registry *chain.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := chaintest.NewGateway(11155111)
	gw.HoldReceipts(true)
	st := memory.New()
	registry := chain.NewRegistry(map[string]chain.Gateway{network: gw})
	return &fixture{
		gw:    gw,
		store: st,
		pipeline: pipeline.New(registry, st, config.PipelineConfig{
			ReceiptTimeout:      20 * time.Millisecond,
			ReceiptPollInterval: 5 * time.Millisecond,
		}, zap.NewNop()),
		registry: registry,
	}
}

// submitDeploy broadcasts a deployment whose receipt is held back, leaving
// the transaction PENDING.
func (f *fixture) submitDeploy(t *testing.T) (*entity.Transaction, int64) {
	t.Helper()
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := chain.AddressOf(key)
	f.gw.SetBalance(from, big.NewInt(1e18))

	var contractID int64
	res, err := f.pipeline.Submit(ctx, pipeline.Options{
		Network: network,
		Kind:    entity.KindDeploy,
		From:    from,
		Data:    []byte{0x60, 0x80},
		Execute: true,
		Key:     key,
		OnPersisted: func(ctx context.Context, tx *entity.Transaction) error {
			c := &entity.Contract{Status: entity.StatusCreated, Network: network, TransactionID: &tx.ID}
			if err := f.store.CreateContract(ctx, c); err != nil {
				return err
			}
			contractID = c.ID
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusPending, res.Transaction.Status)
	return res.Transaction, contractID
}

func TestReconcileOnce_SettlesReleasedReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, contractID := f.submitDeploy(t)

	r := reconciler.New(f.store, f.pipeline, f.registry, reconcileConfig(), zap.NewNop())

	summary, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deferred)

	f.gw.Release()
	time.Sleep(5 * time.Millisecond)

	summary, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, reconciler.Summary{Claimed: 1, Settled: 1}, summary)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessed, stored.Status)
	require.NotEmpty(t, stored.Receipt)

	contract, err := f.store.GetContract(ctx, contractID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessed, contract.Status)
	require.NotEmpty(t, contract.Address)

	// nothing left to do
	summary, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Claimed)
}

func TestReconcileOnce_AbandonsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, contractID := f.submitDeploy(t)

	r := reconciler.New(f.store, f.pipeline, f.registry, reconcileConfig(), zap.NewNop())

	for attempt := 1; attempt < 3; attempt++ {
		summary, err := r.ReconcileOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, summary.Deferred, "attempt %d", attempt)

		stored, err := f.store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, attempt, stored.ReconcileAttempts)
		require.NotNil(t, stored.NextReconcileAt)

		time.Sleep(10 * time.Millisecond)
	}

	summary, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Abandoned)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, stored.Status)
	require.Equal(t, "receipt not found after 3 attempts", stored.Error)

	contract, err := f.store.GetContract(ctx, contractID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, contract.Status)
}

func TestReconcileOnce_RespectsBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, _ := f.submitDeploy(t)

	cfg := reconcileConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	r := reconciler.New(f.store, f.pipeline, f.registry, cfg, zap.NewNop())

	summary, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deferred)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), *stored.NextReconcileAt, time.Minute)

	summary, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Claimed)
}

func TestReconcileOnce_InitialTimeoutDefers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, _ := f.submitDeploy(t)
	f.gw.Release()

	cfg := reconcileConfig()
	cfg.InitialTimeout = time.Hour
	r := reconciler.New(f.store, f.pipeline, f.registry, cfg, zap.NewNop())

	summary, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deferred)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPending, stored.Status)
	require.Zero(t, stored.ReconcileAttempts)
	require.Equal(t, stored.CreatedAt.Add(time.Hour), *stored.NextReconcileAt)
}

func TestReconcileOnce_ReceiptLookupFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	record := &entity.Transaction{Network: network, Kind: entity.KindCall, Status: entity.StatusCreated}
	require.NoError(t, st.CreateTransaction(ctx, record))
	hash := common.HexToHash("0xabc1").Hex()
	_, err := st.TransitionTransaction(ctx, record.ID, []entity.Status{entity.StatusCreated},
		entity.TransactionPatch{Status: entity.StatusPending, TxHash: &hash})
	require.NoError(t, err)

	gw := mocks.NewGateway(t)
	gw.EXPECT().
		TransactionReceipt(mock.Anything, common.HexToHash(hash)).
		Return(nil, errors.New("connection reset by peer")).
		Once()
	registry := chain.NewRegistry(map[string]chain.Gateway{network: gw})
	p := pipeline.New(registry, st, config.PipelineConfig{}, zap.NewNop())

	r := reconciler.New(st, p, registry, reconcileConfig(), zap.NewNop())
	summary, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, reconciler.Summary{Claimed: 1, Errors: 1}, summary)

	// the row stays leased and untouched
	stored, err := st.GetTransaction(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPending, stored.Status)
	require.Zero(t, stored.ReconcileAttempts)

	summary, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Claimed)
}

func TestStartPeriodicReconciliation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, _ := f.submitDeploy(t)
	f.gw.Release()

	r := reconciler.New(f.store, f.pipeline, f.registry, reconcileConfig(), zap.NewNop())
	r.StartPeriodicReconciliation(5 * time.Millisecond)
	defer r.Stop()

	require.Eventually(t, func() bool {
		stored, err := f.store.GetTransaction(ctx, tx.ID)
		return err == nil && stored.Status == entity.StatusProcessed
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
}

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 30 * time.Second},
		{attempts: 1, want: 30 * time.Second},
		{attempts: 2, want: time.Minute},
		{attempts: 3, want: 2 * time.Minute},
		{attempts: 8, want: 64 * time.Minute},
		{attempts: 9, want: time.Hour + 30*time.Minute},
		{attempts: 200, want: time.Hour + 30*time.Minute},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, reconciler.Backoff(base, time.Hour+30*time.Minute, tt.attempts), "attempts %d", tt.attempts)
	}
}
