package dispatcherdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/contract-jobs/pkg/pgutil/migrations"
	"github.com/chainsafe/contract-jobs/pkg/store"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating jobs table...")
		if err := mghelper.CreateSchema(ctx, db, &store.JobDao{}); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_state_run_at ON jobs (state, run_at)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping jobs table...")
		return mghelper.DropTables(ctx, db, &store.JobDao{})
	})
}
