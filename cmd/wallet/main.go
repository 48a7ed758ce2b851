// Command wallet provisions the signing wallet of a team. The private key is
// generated, or imported with -key, and stored as an encrypted keystore.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pgutil"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	teamID := flag.String("team", "", "Team id the wallet belongs to")
	hexKey := flag.String("key", "", "Hex private key to import instead of generating one")
	flag.Parse()

	if *teamID == "" {
		log.Fatal("-team is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}
	passphrase := cfg.Keys.Passphrase()
	if passphrase == "" {
		log.Fatalf("keystore passphrase not set: env=%s", cfg.Keys.PassphraseEnv)
	}

	key, err := loadKey(*hexKey)
	if err != nil {
		log.Fatalf("invalid private key: %s", err.Error())
	}
	keystoreJSON, err := chain.EncryptKey(key, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		log.Fatal(err)
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database %s: %s", cfg.Database.Database, err.Error())
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wallet := &entity.Wallet{
		TeamID:            *teamID,
		Address:           chain.AddressOf(key).Hex(),
		EncryptedKeystore: keystoreJSON,
	}
	err = store.NewStore(db).CreateWallet(ctx, wallet)
	if errors.Is(err, store.ErrAlreadyExists) {
		log.Fatalf("team %s already has a wallet", *teamID)
	}
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("created wallet %d for team %s: %s\n", wallet.ID, wallet.TeamID, wallet.Address)
}

func loadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}
