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
		log.Println("creating transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &store.TransactionDao{}); err != nil {
			return err
		}
		if err := mghelper.AddForeignKey(ctx, db, "transactions", "wallet_id", "wallets"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.TransactionDao{}, "status", "tx_hash", "wallet_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transactions table...")
		return mghelper.DropTables(ctx, db, &store.TransactionDao{})
	})
}
