// Package entity holds the persisted domain records shared by the pipeline,
// orchestrator, reconciler and stores.
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle status shared by transactions and their companion rows.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
	StatusDeleted   Status = "DELETED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed || s == StatusDeleted
}

// Kind names an operation a job can carry.
type Kind string

const (
	KindDeploy          Kind = "deploy"
	KindMint            Kind = "mint"
	KindWhitelistAdd    Kind = "whitelist_add"
	KindWhitelistRemove Kind = "whitelist_remove"
	KindCall            Kind = "call"
)

// Kinds lists every supported operation kind.
var Kinds = []Kind{KindDeploy, KindMint, KindWhitelistAdd, KindWhitelistRemove, KindCall}

// ParseKind accepts the wire form of a kind, tolerating dashes.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// Wallet is a team's signing account. The keystore is the go-ethereum
// encrypted JSON format.
type Wallet struct {
	ID                int64
	TeamID            string
	Address           string
	EncryptedKeystore string
	CreatedAt         time.Time
}

// Transaction is the ledger record of one on-chain submission.
type Transaction struct {
	ID                int64
	Network           string
	Kind              Kind
	Status            Status
	Address           string
	ToAddress         string
	WalletID          *int64
	Payload           json.RawMessage
	TxHash            string
	Receipt           json.RawMessage
	Error             string
	ReconcileAttempts int
	NextReconcileAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TransactionPatch carries the fields written together with a status transition.
// Nil fields are left untouched.
type TransactionPatch struct {
	Status            Status
	TxHash            *string
	Receipt           json.RawMessage
	Error             *string
	ReconcileAttempts *int
	NextReconcileAt   *time.Time
}
