package store

import (
	"context"
	"fmt"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

func (s *pgStore) CreateJob(ctx context.Context, job *entity.Job) error {
	dao := toJobDao(job)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	*job = *toJob(dao)
	return nil
}

func (s *pgStore) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	dao := new(JobDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "job")
	}
	return toJob(dao), nil
}

func (s *pgStore) ClaimJob(ctx context.Context) (*entity.Job, error) {
	next := s.db.NewSelect().
		Model((*JobDao)(nil)).
		Column("id").
		Where("state = ?", string(entity.JobWaiting)).
		Where("run_at <= now()").
		OrderExpr("run_at ASC").
		Limit(1).
		For("UPDATE SKIP LOCKED")

	dao := new(JobDao)
	err := s.db.NewUpdate().
		Model(dao).
		Set("state = ?", string(entity.JobActive)).
		Set("attempts = attempts + 1").
		Set("started_at = now()").
		Set("updated_at = now()").
		Where("id = (?)", next).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "next job")
	}
	return toJob(dao), nil
}

func (s *pgStore) FinishJob(
	ctx context.Context,
	id string,
	state entity.JobState,
	result []byte,
	errMsg, category string,
) error {
	q := s.db.NewUpdate().
		Model((*JobDao)(nil)).
		Set("state = ?", string(state)).
		Set("finished_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("state = ?", string(entity.JobActive))
	if len(result) > 0 {
		q = q.Set("result = ?::jsonb", string(result))
	}
	if errMsg != "" {
		q = q.Set("error = ?", errMsg)
	}
	if category != "" {
		q = q.Set("error_category = ?", category)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return requireAffected(res)
}
