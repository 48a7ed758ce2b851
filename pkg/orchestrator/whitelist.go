package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/merkle"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
)

const setMerkleRootMethod = "setMerkleRoot"

var errNoAddresses = errors.New("no addresses given")

var setMerkleRootABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[{
		"type": "function",
		"name": "setMerkleRoot",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "root", "type": "bytes32"}],
		"outputs": []
	}]`))
	if err != nil {
		panic(err)
	}
	return parsed
}()

func (o *orchestrator) WhitelistAdd(ctx context.Context, req *WhitelistRequest) (*WhitelistResult, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	requested, err := parseAddresses(req.Addresses)
	if err != nil {
		return nil, err
	}
	contract, err := o.deployedContract(ctx, req.ContractID, req.Network)
	if err != nil {
		return nil, err
	}
	active, err := o.activeSet(ctx, contract.ID)
	if err != nil {
		return nil, err
	}

	isActive := make(map[common.Address]bool, len(active))
	for _, a := range active {
		isActive[a] = true
	}
	var added []common.Address
	for _, a := range requested {
		if !isActive[a] {
			added = append(added, a)
		}
	}
	if len(added) == 0 {
		return nil, apperrors.ConflictError(
			fmt.Errorf("%w: contract %d", ErrAllAddressesExist, contract.ID), "all addresses are already whitelisted")
	}

	full := append(active, added...)
	root := merkle.Root(full)
	proofs, err := merkle.Proofs(full, added)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	addresses := hexes(added)
	res, err := o.submitRoot(ctx, contract, req, entity.KindWhitelistAdd, root,
		func(ctx context.Context, tx *entity.Transaction) error {
			// entries already active are skipped
			if _, err := o.store.AddWhitelistEntries(ctx, contract.ID, addresses, &tx.ID); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to add whitelist entries: %w", err))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	o.logger.Info("Whitelist addition submitted",
		zap.Int64("contract_id", contract.ID),
		zap.Int("added", len(added)),
		zap.String("root", root.Hex()),
		zap.Bool("execute", req.Execute))
	return &WhitelistResult{
		Submission: newSubmission(res),
		Root:       root.Hex(),
		Addresses:  addresses,
		Proofs:     proofs,
	}, nil
}

func (o *orchestrator) WhitelistRemove(ctx context.Context, req *WhitelistRequest) (*WhitelistResult, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	requested, err := parseAddresses(req.Addresses)
	if err != nil {
		return nil, err
	}
	contract, err := o.deployedContract(ctx, req.ContractID, req.Network)
	if err != nil {
		return nil, err
	}
	active, err := o.activeSet(ctx, contract.ID)
	if err != nil {
		return nil, err
	}

	remove := make(map[common.Address]bool, len(requested))
	for _, a := range requested {
		remove[a] = true
	}
	var removed, remaining []common.Address
	for _, a := range active {
		if remove[a] {
			removed = append(removed, a)
		} else {
			remaining = append(remaining, a)
		}
	}
	if len(removed) == 0 {
		return nil, apperrors.ResourceNotFoundError(
			fmt.Errorf("%w: contract %d", ErrNothingRemoved, contract.ID), "none of the addresses are whitelisted")
	}

	root := merkle.Root(remaining)
	addresses := hexes(removed)
	res, err := o.submitRoot(ctx, contract, req, entity.KindWhitelistRemove, root,
		func(ctx context.Context, _ *entity.Transaction) error {
			if _, err := o.store.RemoveWhitelistEntries(ctx, contract.ID, addresses); err != nil {
				return apperrors.GeneralError(fmt.Errorf("failed to remove whitelist entries: %w", err))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	o.logger.Info("Whitelist removal submitted",
		zap.Int64("contract_id", contract.ID),
		zap.Int("removed", len(removed)),
		zap.String("root", root.Hex()),
		zap.Bool("execute", req.Execute))
	return &WhitelistResult{
		Submission: newSubmission(res),
		Root:       root.Hex(),
		Addresses:  addresses,
	}, nil
}

// submitRoot sends setMerkleRoot(root) to the contract
func (o *orchestrator) submitRoot(
	ctx context.Context,
	contract *entity.Contract,
	req *WhitelistRequest,
	kind entity.Kind,
	root common.Hash,
	hook pipeline.PersistHook,
) (*pipeline.Result, error) {
	data, err := setMerkleRootABI.Pack(setMerkleRootMethod, [32]byte(root))
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to pack %s: %w", setMerkleRootMethod, err))
	}
	s, err := o.resolveSigner(ctx, req.TeamID, req.From, req.Execute)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(contract.Address)
	return o.submitter.Submit(ctx, pipeline.Options{
		Network:     contract.Network,
		Kind:        kind,
		From:        s.from,
		To:          &to,
		Data:        data,
		Execute:     req.Execute,
		Key:         s.key,
		WalletID:    s.walletID,
		OnPersisted: hook,
	})
}

// activeSet returns the contract's CREATED and PROCESSED whitelist addresses
func (o *orchestrator) activeSet(ctx context.Context, contractID int64) ([]common.Address, error) {
	stored, err := o.store.ListActiveAddresses(ctx, contractID)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to list whitelist of contract %d: %w", contractID, err))
	}
	active, err := merkle.Normalize(stored)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("stored whitelist of contract %d: %w", contractID, err))
	}
	return active, nil
}

func parseAddresses(list string) ([]common.Address, error) {
	addresses, err := merkle.SplitList(list)
	if err != nil {
		return nil, apperrors.BadRequestError(err, err.Error())
	}
	if len(addresses) == 0 {
		return nil, apperrors.BadRequestError(errNoAddresses, errNoAddresses.Error())
	}
	return addresses, nil
}

func hexes(addresses []common.Address) []string {
	out := make([]string, len(addresses))
	for i, a := range addresses {
		out[i] = a.Hex()
	}
	return out
}
