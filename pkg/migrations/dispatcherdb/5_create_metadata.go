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
		log.Println("creating metadata table...")
		if err := mghelper.CreateSchema(ctx, db, &store.MetadataDao{}); err != nil {
			return err
		}
		statements := []string{
			`ALTER TABLE metadata ADD CONSTRAINT chk_metadata_owner CHECK (
				(type = 'COMMON' AND contract_id IS NOT NULL) OR
				(type = 'SPECIFIED' AND token_id IS NOT NULL))`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_metadata_specified_token
				ON metadata (token_id) WHERE type = 'SPECIFIED'`,
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if err := mghelper.AddForeignKey(ctx, db, "metadata", "contract_id", "contracts"); err != nil {
			return err
		}
		if err := mghelper.AddForeignKey(ctx, db, "metadata", "token_id", "tokens"); err != nil {
			return err
		}
		if err := mghelper.AddForeignKey(ctx, db, "contracts", "metadata_id", "metadata"); err != nil {
			return err
		}
		return mghelper.AddForeignKey(ctx, db, "tokens", "metadata_id", "metadata")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping metadata table...")
		return mghelper.DropTables(ctx, db, &store.MetadataDao{})
	})
}
