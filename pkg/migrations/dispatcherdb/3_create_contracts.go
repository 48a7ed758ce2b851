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
		log.Println("creating contracts and tokens tables...")
		if err := mghelper.CreateSchema(ctx, db, &store.ContractDao{}, &store.TokenDao{}); err != nil {
			return err
		}
		for _, fk := range []struct{ table, column, ref string }{
			{"contracts", "wallet_id", "wallets"},
			{"contracts", "transaction_id", "transactions"},
			{"tokens", "contract_id", "contracts"},
			{"tokens", "transaction_id", "transactions"},
		} {
			if err := mghelper.AddForeignKey(ctx, db, fk.table, fk.column, fk.ref); err != nil {
				return err
			}
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &store.ContractDao{}, "transaction_id", "wallet_id"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.TokenDao{}, "contract_id", "transaction_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping contracts and tokens tables...")
		return mghelper.DropTables(ctx, db, &store.TokenDao{}, &store.ContractDao{})
	})
}
