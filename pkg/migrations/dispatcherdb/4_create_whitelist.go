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
		log.Println("creating whitelist table...")
		if err := mghelper.CreateSchema(ctx, db, &store.WhitelistDao{}); err != nil {
			return err
		}
		if err := mghelper.AddForeignKey(ctx, db, "whitelist", "contract_id", "contracts"); err != nil {
			return err
		}
		if err := mghelper.AddForeignKey(ctx, db, "whitelist", "transaction_id", "transactions"); err != nil {
			return err
		}
		// one live row per contract and address; deleted rows are history
		_, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_whitelist_active_address
			ON whitelist (contract_id, address) WHERE status <> 'DELETED'`)
		if err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.WhitelistDao{}, "transaction_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping whitelist table...")
		return mghelper.DropTables(ctx, db, &store.WhitelistDao{})
	})
}
