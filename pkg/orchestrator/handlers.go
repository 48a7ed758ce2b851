package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/entity"
)

// Register binds a handler for every operation kind to d
func Register(d *dispatcher.Dispatcher, svc Service) {
	d.Register(entity.KindDeploy, handle(svc.Deploy))
	d.Register(entity.KindMint, handle(svc.Mint))
	d.Register(entity.KindWhitelistAdd, handle(svc.WhitelistAdd))
	d.Register(entity.KindWhitelistRemove, handle(svc.WhitelistRemove))
	d.Register(entity.KindCall, handle(svc.Call))
}

func handle[Req, Resp any](op func(context.Context, *Req) (*Resp, error)) dispatcher.HandlerFunc {
	return func(ctx context.Context, job *entity.Job) (any, error) {
		req := new(Req)
		if err := json.Unmarshal(job.Payload, req); err != nil {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("failed to decode %s payload: %w", job.Kind, err), "invalid payload: "+err.Error())
		}
		resp, err := op(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}
