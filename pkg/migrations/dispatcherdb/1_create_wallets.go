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
		log.Println("creating wallets table...")
		return mghelper.CreateSchema(ctx, db, &store.WalletDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping wallets table...")
		return mghelper.DropTables(ctx, db, &store.WalletDao{})
	})
}
