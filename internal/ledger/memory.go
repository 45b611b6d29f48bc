package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
)

// MemoryStore is an in-memory Store for tests and local development.
// WithinTx serializes all units behind one mutex and restores a snapshot
// of the full state when fn fails, so aborted units leave nothing behind.
type MemoryStore struct {
	mu sync.Mutex

	wallets      map[string]*types.Wallet   // keyed by user ID
	positions    map[string]*types.Position // keyed by user ID + "/" + company ID
	companies    map[string]*types.Company  // keyed by company ID
	trades       map[string]*types.Trade
	transactions map[string]*types.Transaction
	clientRefs   map[string]string // client_ref -> trade ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*types.Wallet),
		positions:    make(map[string]*types.Position),
		companies:    make(map[string]*types.Company),
		trades:       make(map[string]*types.Trade),
		transactions: make(map[string]*types.Transaction),
		clientRefs:   make(map[string]string),
	}
}

func positionKey(userID, companyID string) string {
	return userID + "/" + companyID
}

type memorySnapshot struct {
	wallets      map[string]*types.Wallet
	positions    map[string]*types.Position
	companies    map[string]*types.Company
	trades       map[string]*types.Trade
	transactions map[string]*types.Transaction
	clientRefs   map[string]string
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		wallets:      make(map[string]*types.Wallet, len(s.wallets)),
		positions:    make(map[string]*types.Position, len(s.positions)),
		companies:    make(map[string]*types.Company, len(s.companies)),
		trades:       make(map[string]*types.Trade, len(s.trades)),
		transactions: make(map[string]*types.Transaction, len(s.transactions)),
		clientRefs:   make(map[string]string, len(s.clientRefs)),
	}
	for k, v := range s.wallets {
		w := *v
		snap.wallets[k] = &w
	}
	for k, v := range s.positions {
		p := *v
		snap.positions[k] = &p
	}
	for k, v := range s.companies {
		c := *v
		snap.companies[k] = &c
	}
	for k, v := range s.trades {
		t := *v
		snap.trades[k] = &t
	}
	for k, v := range s.transactions {
		tx := *v
		m := make(map[string]string, len(v.Metadata))
		for mk, mv := range v.Metadata {
			m[mk] = mv
		}
		tx.Metadata = m
		snap.transactions[k] = &tx
	}
	for k, v := range s.clientRefs {
		snap.clientRefs[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.wallets = snap.wallets
	s.positions = snap.positions
	s.companies = snap.companies
	s.trades = snap.trades
	s.transactions = snap.transactions
	s.clientRefs = snap.clientRefs
}

// WithinTx runs fn while holding the store mutex. Units are fully
// serialized; a failed fn restores the pre-unit snapshot.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memoryTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) GetWalletForUpdate(ctx context.Context, userID string) (*types.Wallet, error) {
	w, ok := t.store.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (t *memoryTx) CreateWallet(ctx context.Context, wallet *types.Wallet) error {
	if _, ok := t.store.wallets[wallet.UserID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	cp := *wallet
	t.store.wallets[wallet.UserID] = &cp
	return nil
}

func (t *memoryTx) UpdateWalletBalance(ctx context.Context, walletID string, balance, locked decimal.Decimal) error {
	for _, w := range t.store.wallets {
		if w.ID == walletID {
			w.Balance = balance
			w.LockedBalance = locked
			w.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (t *memoryTx) GetPositionForUpdate(ctx context.Context, userID, companyID string) (*types.Position, error) {
	p, ok := t.store.positions[positionKey(userID, companyID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memoryTx) CreatePosition(ctx context.Context, position *types.Position) error {
	key := positionKey(position.UserID, position.CompanyID)
	if _, ok := t.store.positions[key]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	position.CreatedAt = now
	position.UpdatedAt = now
	cp := *position
	t.store.positions[key] = &cp
	return nil
}

func (t *memoryTx) UpdatePosition(ctx context.Context, positionID string, quantity int64, totalInvested, averageBuyPrice decimal.Decimal) error {
	for _, p := range t.store.positions {
		if p.ID == positionID {
			p.Quantity = quantity
			p.TotalInvested = totalInvested
			p.AverageBuyPrice = averageBuyPrice
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (t *memoryTx) DeletePosition(ctx context.Context, positionID string) error {
	for key, p := range t.store.positions {
		if p.ID == positionID {
			delete(t.store.positions, key)
			return nil
		}
	}
	return ErrNotFound
}

func (t *memoryTx) GetCompanyForUpdate(ctx context.Context, companyID string) (*types.Company, error) {
	c, ok := t.store.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memoryTx) UpdateCompanyMarketStats(ctx context.Context, companyID string, closingPrice, previousClosingPrice decimal.Decimal, priceChange string, availableShares, tradedVolume int64, tradedValue decimal.Decimal) error {
	c, ok := t.store.companies[companyID]
	if !ok {
		return ErrNotFound
	}
	c.ClosingPrice = closingPrice
	c.PreviousClosingPrice = previousClosingPrice
	c.PriceChange = priceChange
	c.AvailableShares = availableShares
	c.TradedVolume = tradedVolume
	c.TradedValue = tradedValue
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memoryTx) UpdateCompanySharePrice(ctx context.Context, companyID string, sharePrice decimal.Decimal) error {
	c, ok := t.store.companies[companyID]
	if !ok {
		return ErrNotFound
	}
	c.SharePrice = sharePrice
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	if _, ok := t.store.transactions[tx.ID]; ok {
		return ErrDuplicate
	}
	if tx.ProviderRef != "" {
		for _, existing := range t.store.transactions {
			if existing.ProviderRef == tx.ProviderRef {
				return ErrDuplicate
			}
		}
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	cp := *tx
	t.store.transactions[tx.ID] = &cp
	return nil
}

func (t *memoryTx) GetTransactionForUpdate(ctx context.Context, transactionID string) (*types.Transaction, error) {
	tx, ok := t.store.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (t *memoryTx) UpdateTransactionStatus(ctx context.Context, transactionID, status string, metadata map[string]string) error {
	tx, ok := t.store.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	if len(metadata) > 0 {
		if tx.Metadata == nil {
			tx.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			tx.Metadata[k] = v
		}
	}
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memoryTx) SetTransactionProviderRef(ctx context.Context, transactionID, provider, providerRef string) error {
	tx, ok := t.store.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	tx.Provider = provider
	tx.ProviderRef = providerRef
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memoryTx) InsertTrade(ctx context.Context, trade *types.Trade) error {
	if _, ok := t.store.trades[trade.ID]; ok {
		return ErrDuplicate
	}
	if trade.ClientRef != "" {
		if _, ok := t.store.clientRefs[trade.ClientRef]; ok {
			return ErrDuplicate
		}
		t.store.clientRefs[trade.ClientRef] = trade.ID
	}
	trade.CreatedAt = time.Now().UTC()
	cp := *trade
	t.store.trades[trade.ID] = &cp
	return nil
}

// --- Plain reads ---

func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, userID, companyID string) (*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[positionKey(userID, companyID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPositionsByUser(ctx context.Context, userID string) ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []types.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

func (s *MemoryStore) GetCompany(ctx context.Context, companyID string) (*types.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetCompanyBySymbol(ctx context.Context, symbol string) (*types.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.companies {
		if c.Symbol == symbol {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCompanies(ctx context.Context) ([]types.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var companies []types.Company
	for _, c := range s.companies {
		companies = append(companies, *c)
	}
	return companies, nil
}

func (s *MemoryStore) GetTrade(ctx context.Context, tradeID string) (*types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTradesByUser(ctx context.Context, userID string, limit int) ([]types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var trades []types.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			trades = append(trades, *t)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].CreatedAt.After(trades[j].CreatedAt)
		}
		return trades[i].ID > trades[j].ID
	})
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) GetTransactionByProviderRef(ctx context.Context, providerRef string) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions {
		if tx.ProviderRef == providerRef {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var txs []types.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			txs = append(txs, *tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *MemoryStore) CreateCompany(ctx context.Context, company *types.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[company.ID]; ok {
		return ErrDuplicate
	}
	for _, c := range s.companies {
		if c.Symbol == company.Symbol {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now
	cp := *company
	s.companies[company.ID] = &cp
	return nil
}
