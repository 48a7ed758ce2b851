package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
)

const serviceName = "OrchestratorService"

// logService wraps Service with logging of every operation
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the orchestrator Service.
// It logs entry, outcome and duration of each operation.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Deploy(ctx context.Context, req *DeployRequest) (resp *DeployResult, err error) {
	start := time.Now()
	ls.logger.Info("Deploy started",
		zap.String("service", serviceName),
		zap.String("network", req.Network),
		zap.String("team_id", req.TeamID),
		zap.String("name", req.Name),
		zap.Bool("execute", req.Execute),
	)
	defer func() {
		if err != nil {
			ls.failed("Deploy", start, err)
			return
		}
		ls.logger.Info("Deploy completed",
			zap.String("service", serviceName),
			zap.Int64("contract_id", resp.ContractID),
			zap.String("contract_address", resp.ContractAddress),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.Deploy(ctx, req)
}

func (ls *logService) Mint(ctx context.Context, req *MintRequest) (resp *MintResult, err error) {
	start := time.Now()
	ls.logger.Info("Mint started",
		zap.String("service", serviceName),
		zap.Int64("contract_id", req.ContractID),
		zap.String("method", req.Method),
		zap.Int64("nft_number", req.NFTNumber),
		zap.Bool("execute", req.Execute),
	)
	defer func() {
		if err != nil {
			ls.failed("Mint", start, err)
			return
		}
		ls.logger.Info("Mint completed",
			zap.String("service", serviceName),
			zap.Int64("token_id", resp.TokenID),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.Mint(ctx, req)
}

func (ls *logService) WhitelistAdd(ctx context.Context, req *WhitelistRequest) (resp *WhitelistResult, err error) {
	start := time.Now()
	ls.logger.Info("WhitelistAdd started",
		zap.String("service", serviceName),
		zap.Int64("contract_id", req.ContractID),
		zap.Bool("execute", req.Execute),
	)
	defer func() {
		if err != nil {
			ls.failed("WhitelistAdd", start, err)
			return
		}
		ls.logger.Info("WhitelistAdd completed",
			zap.String("service", serviceName),
			zap.Int("addresses", len(resp.Addresses)),
			zap.String("root", resp.Root),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.WhitelistAdd(ctx, req)
}

func (ls *logService) WhitelistRemove(ctx context.Context, req *WhitelistRequest) (resp *WhitelistResult, err error) {
	start := time.Now()
	ls.logger.Info("WhitelistRemove started",
		zap.String("service", serviceName),
		zap.Int64("contract_id", req.ContractID),
		zap.Bool("execute", req.Execute),
	)
	defer func() {
		if err != nil {
			ls.failed("WhitelistRemove", start, err)
			return
		}
		ls.logger.Info("WhitelistRemove completed",
			zap.String("service", serviceName),
			zap.Int("addresses", len(resp.Addresses)),
			zap.String("root", resp.Root),
			zap.String("tx_hash", resp.TxHash),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.WhitelistRemove(ctx, req)
}

func (ls *logService) Call(ctx context.Context, req *CallRequest) (resp *CallResult, err error) {
	start := time.Now()
	ls.logger.Info("Call started",
		zap.String("service", serviceName),
		zap.Int64("contract_id", req.ContractID),
		zap.String("method", req.Method),
		zap.Bool("execute", req.Execute),
	)
	defer func() {
		if err != nil {
			ls.failed("Call", start, err)
			return
		}
		ls.logger.Info("Call completed",
			zap.String("service", serviceName),
			zap.Bool("read", resp.Submission == nil),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.Call(ctx, req)
}

// failed logs caller mistakes at warn and everything else at error
func (ls *logService) failed(method string, start time.Time, err error) {
	level := zapcore.ErrorLevel
	if !apperrors.IsInternalError(err) {
		level = zapcore.WarnLevel
	}
	ls.logger.Log(level, method+" failed",
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.String("category", apperrors.CategoryOf(err).String()),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
}
