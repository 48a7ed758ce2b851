// Package memory is an in-memory implementation of store.Store used by tests
// and local runs without Postgres.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

// Store keeps every record in maps guarded by one mutex and hands out copies.
type Store struct {
	mu     sync.Mutex
	nextID int64

	wallets      map[int64]*entity.Wallet
	contracts    map[int64]*entity.Contract
	tokens       map[int64]*entity.Token
	whitelist    map[int64]*entity.WhitelistEntry
	metadata     map[int64]*entity.Metadata
	transactions map[int64]*entity.Transaction
	claims       map[int64]time.Time
	jobs         map[string]*entity.Job

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		wallets:      make(map[int64]*entity.Wallet),
		contracts:    make(map[int64]*entity.Contract),
		tokens:       make(map[int64]*entity.Token),
		whitelist:    make(map[int64]*entity.WhitelistEntry),
		metadata:     make(map[int64]*entity.Metadata),
		transactions: make(map[int64]*entity.Transaction),
		claims:       make(map[int64]time.Time),
		jobs:         make(map[string]*entity.Job),
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateWallet(_ context.Context, wallet *entity.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.TeamID == wallet.TeamID {
			return store.ErrAlreadyExists
		}
	}
	wallet.ID = s.id()
	wallet.CreatedAt = s.now()
	c := *wallet
	s.wallets[c.ID] = &c
	return nil
}

func (s *Store) GetWallet(_ context.Context, id int64) (*entity.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *w
	return &c, nil
}

func (s *Store) GetWalletByTeam(_ context.Context, teamID string) (*entity.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.TeamID == teamID {
			c := *w
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateContract(_ context.Context, contract *entity.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract.ID = s.id()
	contract.CreatedAt = s.now()
	contract.UpdatedAt = contract.CreatedAt
	c := *contract
	s.contracts[c.ID] = &c
	return nil
}

func (s *Store) GetContract(_ context.Context, id int64) (*entity.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) SetContractMetadata(_ context.Context, contractID, metadataID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[contractID]
	if !ok {
		return store.ErrNotFound
	}
	c.MetadataID = &metadataID
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) SettleContract(_ context.Context, txID int64, status entity.Status, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.contracts {
		if c.TransactionID == nil || *c.TransactionID != txID || c.Status != entity.StatusCreated {
			continue
		}
		c.Status = status
		if address != "" {
			c.Address = address
		}
		c.UpdatedAt = s.now()
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) CreateToken(_ context.Context, token *entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.ID = s.id()
	token.CreatedAt = s.now()
	token.UpdatedAt = token.CreatedAt
	c := *token
	s.tokens[c.ID] = &c
	return nil
}

func (s *Store) GetToken(_ context.Context, id int64) (*entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) SetTokenMetadata(_ context.Context, tokenID, metadataID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return store.ErrNotFound
	}
	t.MetadataID = &metadataID
	t.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountTokens(_ context.Context, contractID int64, status entity.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countTokens(contractID, status), nil
}

func (s *Store) countTokens(contractID int64, status entity.Status) int64 {
	var n int64
	for _, t := range s.tokens {
		if t.ContractID == contractID && t.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) SettleToken(_ context.Context, txID int64, txHash string, receipt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TransactionID == nil || *t.TransactionID != txID || t.Status != entity.StatusCreated {
			continue
		}
		seq := s.countTokens(t.ContractID, entity.StatusProcessed)
		t.Status = entity.StatusProcessed
		t.SequenceNumber = &seq
		t.TxHash = txHash
		t.Receipt = slices.Clone(receipt)
		t.UpdatedAt = s.now()
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) ListActiveAddresses(_ context.Context, contractID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*entity.WhitelistEntry
	for _, e := range s.whitelist {
		if e.ContractID == contractID && e.Status != entity.StatusDeleted {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	addresses := make([]string, len(entries))
	for i, e := range entries {
		addresses[i] = e.Address
	}
	return addresses, nil
}

func (s *Store) activeEntry(contractID int64, address string) *entity.WhitelistEntry {
	for _, e := range s.whitelist {
		if e.ContractID == contractID && e.Address == address && e.Status != entity.StatusDeleted {
			return e
		}
	}
	return nil
}

func (s *Store) AddWhitelistEntries(
	_ context.Context,
	contractID int64,
	addresses []string,
	txID *int64,
) ([]*entity.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []*entity.WhitelistEntry
	for _, addr := range addresses {
		if s.activeEntry(contractID, addr) != nil {
			continue
		}
		now := s.now()
		e := &entity.WhitelistEntry{
			ID:            s.id(),
			Status:        entity.StatusCreated,
			ContractID:    contractID,
			Address:       addr,
			TransactionID: txID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.whitelist[e.ID] = e
		c := *e
		inserted = append(inserted, &c)
	}
	return inserted, nil
}

func (s *Store) RemoveWhitelistEntries(_ context.Context, contractID int64, addresses []string) ([]*entity.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*entity.WhitelistEntry
	for _, addr := range addresses {
		e := s.activeEntry(contractID, addr)
		if e == nil {
			continue
		}
		e.Status = entity.StatusDeleted
		e.UpdatedAt = s.now()
		c := *e
		removed = append(removed, &c)
	}
	return removed, nil
}

func (s *Store) SettleWhitelistEntries(_ context.Context, txID int64, status entity.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.whitelist {
		if e.TransactionID == nil || *e.TransactionID != txID || e.Status != entity.StatusCreated {
			continue
		}
		e.Status = status
		e.UpdatedAt = s.now()
		n++
	}
	return n, nil
}

// WhitelistEntries returns every row for a contract, deleted ones included.
func (s *Store) WhitelistEntries(contractID int64) []*entity.WhitelistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.WhitelistEntry
	for _, e := range s.whitelist {
		if e.ContractID == contractID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyMetadata(m *entity.Metadata) *entity.Metadata {
	c := *m
	c.Fields = maps.Clone(m.Fields)
	return &c
}

func (s *Store) CreateMetadata(_ context.Context, metadata *entity.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if metadata.Type() == entity.MetadataSpecified {
		tokenID, _ := metadata.TokenID()
		for _, m := range s.metadata {
			if id, ok := m.TokenID(); ok && id == tokenID {
				return store.ErrAlreadyExists
			}
		}
	}
	metadata.ID = s.id()
	s.metadata[metadata.ID] = copyMetadata(metadata)
	return nil
}

func (s *Store) GetMetadata(_ context.Context, id int64) (*entity.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metadata[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMetadata(m), nil
}

func (s *Store) GetTokenMetadata(_ context.Context, tokenID int64) (*entity.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.metadata {
		if id, ok := m.TokenID(); ok && id == tokenID {
			return copyMetadata(m), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateMetadataFields(_ context.Context, id int64, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metadata[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Fields = maps.Clone(fields)
	return nil
}

func copyTransaction(t *entity.Transaction) *entity.Transaction {
	c := *t
	c.Payload = slices.Clone(t.Payload)
	c.Receipt = slices.Clone(t.Receipt)
	return &c
}

func (s *Store) CreateTransaction(_ context.Context, tx *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = s.id()
	tx.CreatedAt = s.now()
	tx.UpdatedAt = tx.CreatedAt
	s.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyTransaction(t), nil
}

func (s *Store) ListTransactions(_ context.Context, opts ...store.QueryOption) ([]*entity.Transaction, error) {
	options := store.NewQueryOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Transaction
	for _, t := range s.transactions {
		if options.Status != nil && t.Status != *options.Status {
			continue
		}
		if options.Network != nil && t.Network != *options.Network {
			continue
		}
		if options.Kind != nil && t.Kind != *options.Kind {
			continue
		}
		out = append(out, copyTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if options.Limit > 0 && len(out) > options.Limit {
		out = out[:options.Limit]
	}
	return out, nil
}

func (s *Store) TransitionTransaction(
	_ context.Context,
	id int64,
	from []entity.Status,
	patch entity.TransactionPatch,
) (*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(from, t.Status) {
		return nil, store.ErrInvalidTransition
	}

	t.Status = patch.Status
	if patch.TxHash != nil {
		t.TxHash = *patch.TxHash
	}
	if len(patch.Receipt) > 0 {
		t.Receipt = slices.Clone(patch.Receipt)
	}
	if patch.Error != nil {
		t.Error = *patch.Error
	}
	if patch.ReconcileAttempts != nil {
		t.ReconcileAttempts = *patch.ReconcileAttempts
	}
	if patch.NextReconcileAt != nil {
		next := *patch.NextReconcileAt
		t.NextReconcileAt = &next
	}
	t.UpdatedAt = s.now()
	delete(s.claims, id)

	return copyTransaction(t), nil
}

func (s *Store) ClaimPendingTransactions(_ context.Context, limit int, lease time.Duration) ([]*entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := make([]int64, 0, len(s.transactions))
	for id, t := range s.transactions {
		if t.Status != entity.StatusPending || t.TxHash == "" {
			continue
		}
		if t.NextReconcileAt != nil && t.NextReconcileAt.After(now) {
			continue
		}
		if until, ok := s.claims[id]; ok && until.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*entity.Transaction, 0, len(ids))
	for _, id := range ids {
		s.claims[id] = now.Add(lease)
		out = append(out, copyTransaction(s.transactions[id]))
	}
	return out, nil
}

func copyJob(j *entity.Job) *entity.Job {
	c := *j
	c.Payload = slices.Clone(j.Payload)
	c.Result = slices.Clone(j.Result)
	return &c
}

func (s *Store) CreateJob(_ context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrAlreadyExists
	}
	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (s *Store) ClaimJob(_ context.Context) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var next *entity.Job
	for _, j := range s.jobs {
		if j.State != entity.JobWaiting || j.RunAt.After(now) {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) {
			next = j
		}
	}
	if next == nil {
		return nil, store.ErrNotFound
	}

	next.State = entity.JobActive
	next.Attempts++
	next.StartedAt = &now
	next.UpdatedAt = now
	return copyJob(next), nil
}

func (s *Store) FinishJob(_ context.Context, id string, state entity.JobState, result []byte, errMsg, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.State != entity.JobActive {
		return store.ErrNotFound
	}
	now := s.now()
	j.State = state
	j.Result = slices.Clone(result)
	j.Error = errMsg
	j.ErrorCategory = category
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}
