package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
)

func (o *orchestrator) Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	parsed, err := parseABI(req.ABI)
	if err != nil {
		return nil, err
	}
	args, err := convertArgs(parsed.Constructor.Inputs, req.ConstructorArgs)
	if err != nil {
		return nil, err
	}
	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, apperrors.BadRequestError(fmt.Errorf("failed to pack constructor: %w", err), "invalid constructor arguments")
	}
	bytecode, err := hexutil.Decode(with0x(req.Bytecode))
	if err != nil {
		return nil, apperrors.BadRequestError(fmt.Errorf("failed to decode bytecode: %w", err), "invalid bytecode")
	}

	s, err := o.resolveSigner(ctx, req.TeamID, req.From, req.Execute)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if req.Execute && len(req.Metadata) > 0 {
		if fields, err = o.prepareMetadata(ctx, req.Metadata); err != nil {
			return nil, err
		}
	}

	var contract *entity.Contract
	var metadata *entity.Metadata
	res, err := o.submitter.Submit(ctx, pipeline.Options{
		Network:  req.Network,
		Kind:     entity.KindDeploy,
		From:     s.from,
		Data:     concat(bytecode, packed),
		Execute:  req.Execute,
		Key:      s.key,
		WalletID: s.walletID,
		OnPersisted: func(ctx context.Context, tx *entity.Transaction) error {
			contract = &entity.Contract{
				Status:  entity.StatusCreated,
				Network: strings.ToLower(req.Network),
				DeployPayload: entity.DeployPayload{
					Name:            req.Name,
					ABI:             req.ABI,
					Bytecode:        req.Bytecode,
					ConstructorArgs: req.ConstructorArgs,
				},
				WalletID:      *s.walletID,
				TransactionID: &tx.ID,
			}
			if err := o.store.CreateContract(ctx, contract); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to create contract: %w", err))
			}
			if fields == nil {
				return nil
			}
			metadata = &entity.Metadata{
				Status: entity.StatusCreated,
				Owner:  entity.CommonOwner{ContractID: contract.ID},
				Fields: fields,
			}
			if err := o.store.CreateMetadata(ctx, metadata); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to create contract metadata: %w", err))
			}
			if err := o.store.SetContractMetadata(ctx, contract.ID, metadata.ID); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to attach contract metadata: %w", err))
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	result := &DeployResult{Submission: newSubmission(res)}
	if contract == nil {
		return result, nil
	}

	// re-read to pick up the address and status written on settle
	stored, err := o.store.GetContract(ctx, contract.ID)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to reload contract %d: %w", contract.ID, err))
	}
	result.ContractID = stored.ID
	result.ContractStatus = string(stored.Status)
	result.ContractAddress = stored.Address
	if metadata != nil {
		result.MetadataID = &metadata.ID
	}

	o.logger.Info("Contract deployment submitted",
		zap.Int64("contract_id", stored.ID),
		zap.String("status", string(stored.Status)),
		zap.String("address", stored.Address),
		zap.String("tx_hash", result.TxHash))
	return result, nil
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
