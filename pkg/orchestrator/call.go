package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
)

// Call reads view and pure methods directly and sends everything else
// through the pipeline.
func (o *orchestrator) Call(ctx context.Context, req *CallRequest) (*CallResult, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	contract, err := o.deployedContract(ctx, req.ContractID, req.Network)
	if err != nil {
		return nil, err
	}
	parsed, err := parseABI(contract.DeployPayload.ABI)
	if err != nil {
		return nil, err
	}
	method, err := lookupMethod(parsed, req.Method)
	if err != nil {
		return nil, err
	}
	args, err := convertArgs(method.Inputs, req.Args)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method.Name, args...)
	if err != nil {
		return nil, apperrors.BadRequestError(fmt.Errorf("failed to pack %s: %w", method.Name, err), "invalid method arguments")
	}

	to := common.HexToAddress(contract.Address)
	if method.IsConstant() {
		return o.read(ctx, contract, parsed, method, req.From, to, data)
	}

	s, err := o.resolveSigner(ctx, req.TeamID, req.From, req.Execute)
	if err != nil {
		return nil, err
	}
	res, err := o.submitter.Submit(ctx, pipeline.Options{
		Network:  contract.Network,
		Kind:     entity.KindCall,
		From:     s.from,
		To:       &to,
		Data:     data,
		Execute:  req.Execute,
		Key:      s.key,
		WalletID: s.walletID,
	})
	if err != nil {
		return nil, err
	}

	submission := newSubmission(res)
	o.logger.Info("Contract call submitted",
		zap.Int64("contract_id", contract.ID),
		zap.String("method", method.Name),
		zap.String("tx_hash", submission.TxHash))
	return &CallResult{Submission: &submission}, nil
}

func (o *orchestrator) read(
	ctx context.Context,
	contract *entity.Contract,
	parsed abi.ABI,
	method abi.Method,
	from string,
	to common.Address,
	data []byte,
) (*CallResult, error) {
	gw, err := o.gateways.Get(contract.Network)
	if err != nil {
		return nil, apperrors.BadRequestError(err, fmt.Sprintf("unknown network %q", contract.Network))
	}

	msg := ethereum.CallMsg{To: &to, Data: data}
	if common.IsHexAddress(from) {
		msg.From = common.HexToAddress(from)
	}
	out, err := gw.CallContract(ctx, msg)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to call %s: %w", method.Name, err), "contract call failed: "+err.Error())
	}
	values, err := parsed.Unpack(method.Name, out)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to decode %s output: %w", method.Name, err), "failed to decode call output")
	}
	return &CallResult{Outputs: formatOutputs(values)}, nil
}
