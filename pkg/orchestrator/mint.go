package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

func (o *orchestrator) Mint(ctx context.Context, req *MintRequest) (*MintResult, error) {
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

	s, err := o.resolveSigner(ctx, req.TeamID, req.From, req.Execute)
	if err != nil {
		return nil, err
	}

	var base *entity.Metadata
	if req.Execute && contract.MetadataID != nil {
		base, err = o.store.GetMetadata(ctx, *contract.MetadataID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.GeneralError(fmt.Errorf("failed to load contract metadata: %w", err))
		}
	}

	to := common.HexToAddress(contract.Address)
	var token *entity.Token
	res, err := o.submitter.Submit(ctx, pipeline.Options{
		Network:  contract.Network,
		Kind:     entity.KindMint,
		From:     s.from,
		To:       &to,
		Data:     data,
		Execute:  req.Execute,
		Key:      s.key,
		WalletID: s.walletID,
		OnPersisted: func(ctx context.Context, tx *entity.Transaction) error {
			token = &entity.Token{
				Status:        entity.StatusCreated,
				ContractID:    contract.ID,
				NFTNumber:     req.NFTNumber,
				MintPayload:   entity.MintPayload{Method: method.Name, Args: req.Args},
				TransactionID: &tx.ID,
			}
			if len(req.Metadata) == 0 && base != nil {
				token.MetadataID = &base.ID
			}
			if err := o.store.CreateToken(ctx, token); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to create token: %w", err))
			}
			if len(req.Metadata) == 0 {
				return nil
			}
			if _, err := MaterializeTokenMetadata(ctx, o.store, token, base, req.Metadata); err != nil {
				return apperrors.GeneralError(err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	result := &MintResult{Submission: newSubmission(res)}
	if token == nil {
		return result, nil
	}
	result.TokenID = token.ID
	result.MetadataID = token.MetadataID

	o.logger.Info("Token mint submitted",
		zap.Int64("contract_id", contract.ID),
		zap.Int64("token_id", token.ID),
		zap.String("method", method.Name),
		zap.String("tx_hash", result.TxHash))
	return result, nil
}
