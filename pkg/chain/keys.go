package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// DecryptKey opens a go-ethereum JSON keystore.
func DecryptKey(keystoreJSON, passphrase string) (*ecdsa.PrivateKey, error) {
	key, err := keystore.DecryptKey([]byte(keystoreJSON), passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

// EncryptKey seals key into a JSON keystore. scryptN/scryptP follow the
// keystore package constants (keystore.StandardScryptN, keystore.LightScryptN).
func EncryptKey(key *ecdsa.PrivateKey, passphrase string, scryptN, scryptP int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate key id: %w", err)
	}
	data, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}, passphrase, scryptN, scryptP)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt keystore: %w", err)
	}
	return string(data), nil
}

// AddressOf returns the account address controlled by key
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SignTransaction signs tx for chainID with the latest signer the chain supports.
func SignTransaction(tx *types.Transaction, key *ecdsa.PrivateKey, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
