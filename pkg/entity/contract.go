package entity

import (
	"encoding/json"
	"time"
)

// DeployPayload is the stored description of a deployed contract. The ABI is
// kept so later mint and call jobs can encode against it.
type DeployPayload struct {
	Name            string `json:"name"`
	ABI             string `json:"abi"`
	Bytecode        string `json:"bytecode"`
	ConstructorArgs string `json:"constructor_args,omitzero"`
}

// Contract is a deployed (or deploying) contract owned by a wallet.
type Contract struct {
	ID            int64
	Status        Status
	Network       string
	Address       string
	DeployPayload DeployPayload
	WalletID      int64
	TransactionID *int64
	MetadataID    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MintPayload is the call a token was minted with.
type MintPayload struct {
	Method string `json:"method"`
	Args   string `json:"args"`
}

// Token is a minted (or minting) token of a contract.
type Token struct {
	ID             int64
	Status         Status
	SequenceNumber *int64
	ContractID     int64
	NFTNumber      int64
	MintPayload    MintPayload
	TxHash         string
	Receipt        json.RawMessage
	TransactionID  *int64
	MetadataID     *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WhitelistEntry is one address admitted to a contract's whitelist.
type WhitelistEntry struct {
	ID            int64
	Status        Status
	ContractID    int64
	Address       string
	TransactionID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
