package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/types"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// they are written with ::NUMERIC casts and read back as ::TEXT into
// decimal.NewFromString.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// WithinTx runs fn inside one database transaction. Row locks taken by
// ForUpdate reads are held until commit or rollback.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&postgresTx{tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// postgresTx implements Tx on a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetWalletForUpdate(ctx context.Context, userID string) (*types.Wallet, error) {
	return scanWallet(t.tx.QueryRow(ctx, `
		SELECT id, user_id, balance::TEXT, locked_balance::TEXT, created_at, updated_at
		FROM wallets WHERE user_id = $1
		FOR UPDATE
	`, userID))
}

func (t *postgresTx) CreateWallet(ctx context.Context, wallet *types.Wallet) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, locked_balance)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		RETURNING created_at, updated_at
	`, wallet.ID, wallet.UserID, wallet.Balance.String(), wallet.LockedBalance.String(),
	).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create wallet: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) UpdateWalletBalance(ctx context.Context, walletID string, balance, locked decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE wallets
		SET balance = $1::NUMERIC, locked_balance = $2::NUMERIC, updated_at = NOW()
		WHERE id = $3
	`, balance.String(), locked.String(), walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	return nil
}

func (t *postgresTx) GetPositionForUpdate(ctx context.Context, userID, companyID string) (*types.Position, error) {
	return scanPosition(t.tx.QueryRow(ctx, `
		SELECT id, user_id, company_id, quantity, total_invested::TEXT, average_buy_price::TEXT, created_at, updated_at
		FROM positions WHERE user_id = $1 AND company_id = $2
		FOR UPDATE
	`, userID, companyID))
}

func (t *postgresTx) CreatePosition(ctx context.Context, position *types.Position) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO positions (id, user_id, company_id, quantity, total_invested, average_buy_price)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC)
		RETURNING created_at, updated_at
	`, position.ID, position.UserID, position.CompanyID, position.Quantity,
		position.TotalInvested.String(), position.AverageBuyPrice.String(),
	).Scan(&position.CreatedAt, &position.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create position: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) UpdatePosition(ctx context.Context, positionID string, quantity int64, totalInvested, averageBuyPrice decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE positions
		SET quantity = $1, total_invested = $2::NUMERIC, average_buy_price = $3::NUMERIC, updated_at = NOW()
		WHERE id = $4
	`, quantity, totalInvested.String(), averageBuyPrice.String(), positionID)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return nil
}

func (t *postgresTx) DeletePosition(ctx context.Context, positionID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (t *postgresTx) GetCompanyForUpdate(ctx context.Context, companyID string) (*types.Company, error) {
	return scanCompany(t.tx.QueryRow(ctx, companySelect+` WHERE id = $1 FOR UPDATE`, companyID))
}

func (t *postgresTx) UpdateCompanyMarketStats(ctx context.Context, companyID string, closingPrice, previousClosingPrice decimal.Decimal, priceChange string, availableShares, tradedVolume int64, tradedValue decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE companies
		SET closing_price = $1::NUMERIC,
		    previous_closing_price = $2::NUMERIC,
		    price_change = $3,
		    available_shares = $4,
		    traded_volume = $5,
		    traded_value = $6::NUMERIC,
		    updated_at = NOW()
		WHERE id = $7
	`, closingPrice.String(), previousClosingPrice.String(), priceChange,
		availableShares, tradedVolume, tradedValue.String(), companyID)
	if err != nil {
		return fmt.Errorf("update company market stats: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateCompanySharePrice(ctx context.Context, companyID string, sharePrice decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE companies SET share_price = $1::NUMERIC, updated_at = NOW() WHERE id = $2
	`, sharePrice.String(), companyID)
	if err != nil {
		return fmt.Errorf("update company share price: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}

	// Empty refs must land as NULL so the partial unique index on
	// provider_ref only ever sees real provider references.
	var provider, providerRef any
	if tx.Provider != "" {
		provider = tx.Provider
	}
	if tx.ProviderRef != "" {
		providerRef = tx.ProviderRef
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, status, provider, provider_ref, metadata)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, tx.ID, tx.UserID, tx.Type, tx.Amount.String(), tx.Status,
		provider, providerRef, metadata,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) GetTransactionForUpdate(ctx context.Context, transactionID string) (*types.Transaction, error) {
	return scanTransaction(t.tx.QueryRow(ctx, transactionSelect+` WHERE id = $1 FOR UPDATE`, transactionID))
}

func (t *postgresTx) UpdateTransactionStatus(ctx context.Context, transactionID, status string, metadata map[string]string) error {
	return updateTransactionStatus(ctx, t.tx, transactionID, status, metadata)
}

func (t *postgresTx) SetTransactionProviderRef(ctx context.Context, transactionID, provider, providerRef string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE transactions SET provider = $1, provider_ref = $2, updated_at = NOW() WHERE id = $3
	`, provider, providerRef, transactionID)
	if err != nil {
		return fmt.Errorf("set transaction provider ref: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) InsertTrade(ctx context.Context, trade *types.Trade) error {
	var clientRef any
	if trade.ClientRef != "" {
		clientRef = trade.ClientRef
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO trades (id, user_id, company_id, side, price_mode, requested_price,
		                    executed_price, quantity, fees, total_amount, status, transaction_id, client_ref)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9::NUMERIC, $10::NUMERIC, $11, $12, $13)
		RETURNING created_at
	`, trade.ID, trade.UserID, trade.CompanyID, trade.Side, trade.PriceMode,
		trade.RequestedPrice.String(), trade.ExecutedPrice.String(), trade.Quantity,
		trade.Fees.String(), trade.TotalAmount.String(), trade.Status,
		trade.TransactionID, clientRef,
	).Scan(&trade.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", mapPgError(err))
	}
	return nil
}

// --- Plain reads ---

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx, `
		SELECT id, user_id, balance::TEXT, locked_balance::TEXT, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID))
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, companyID string) (*types.Position, error) {
	return scanPosition(s.pool.QueryRow(ctx, `
		SELECT id, user_id, company_id, quantity, total_invested::TEXT, average_buy_price::TEXT, created_at, updated_at
		FROM positions WHERE user_id = $1 AND company_id = $2
	`, userID, companyID))
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]types.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, company_id, quantity, total_invested::TEXT, average_buy_price::TEXT, created_at, updated_at
		FROM positions WHERE user_id = $1
		ORDER BY company_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

const companySelect = `
	SELECT id, symbol, name, share_price::TEXT, closing_price::TEXT,
	       previous_closing_price::TEXT, price_change, total_shares,
	       available_shares, traded_volume, traded_value::TEXT,
	       created_at, updated_at
	FROM companies`

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*types.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, companySelect+` WHERE id = $1`, companyID))
}

func (s *PostgresStore) GetCompanyBySymbol(ctx context.Context, symbol string) (*types.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, companySelect+` WHERE symbol = $1`, symbol))
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]types.Company, error) {
	rows, err := s.pool.Query(ctx, companySelect+` ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var companies []types.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

const tradeSelect = `
	SELECT id, user_id, company_id, side, price_mode, requested_price::TEXT,
	       executed_price::TEXT, quantity, fees::TEXT, total_amount::TEXT,
	       status, COALESCE(transaction_id, ''), COALESCE(client_ref, ''), created_at
	FROM trades`

func (s *PostgresStore) GetTrade(ctx context.Context, tradeID string) (*types.Trade, error) {
	return scanTrade(s.pool.QueryRow(ctx, tradeSelect+` WHERE id = $1`, tradeID))
}

func (s *PostgresStore) ListTradesByUser(ctx context.Context, userID string, limit int) ([]types.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, tradeSelect+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

const transactionSelect = `
	SELECT id, user_id, type, amount::TEXT, status, COALESCE(provider, ''),
	       COALESCE(provider_ref, ''), metadata, created_at, updated_at
	FROM transactions`

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID string) (*types.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, transactionSelect+` WHERE id = $1`, transactionID))
}

func (s *PostgresStore) GetTransactionByProviderRef(ctx context.Context, providerRef string) (*types.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, transactionSelect+` WHERE provider_ref = $1`, providerRef))
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]types.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, transactionSelect+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) CreateCompany(ctx context.Context, company *types.Company) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, symbol, name, share_price, closing_price, previous_closing_price,
		                       price_change, total_shares, available_shares, traded_volume, traded_value)
		VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10, $11::NUMERIC)
		RETURNING created_at, updated_at
	`, company.ID, company.Symbol, company.Name,
		company.SharePrice.String(), company.ClosingPrice.String(), company.PreviousClosingPrice.String(),
		company.PriceChange, company.TotalShares, company.AvailableShares,
		company.TradedVolume, company.TradedValue.String(),
	).Scan(&company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create company: %w", mapPgError(err))
	}
	return nil
}

// --- Row scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateTransactionStatus(ctx context.Context, ex execer, transactionID, status string, metadata map[string]string) error {
	if metadata == nil {
		_, err := ex.Exec(ctx, `
			UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2
		`, status, transactionID)
		if err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		return nil
	}

	extra, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}
	_, err = ex.Exec(ctx, `
		UPDATE transactions
		SET status = $1, metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = NOW()
		WHERE id = $3
	`, status, extra, transactionID)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

func scanWallet(row rowScanner) (*types.Wallet, error) {
	var w types.Wallet
	var balance, locked string

	err := row.Scan(&w.ID, &w.UserID, &balance, &locked, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", mapPgError(err))
	}

	w.Balance, _ = decimal.NewFromString(balance)
	w.LockedBalance, _ = decimal.NewFromString(locked)
	return &w, nil
}

func scanPosition(row rowScanner) (*types.Position, error) {
	var p types.Position
	var invested, avgPrice string

	err := row.Scan(&p.ID, &p.UserID, &p.CompanyID, &p.Quantity,
		&invested, &avgPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", mapPgError(err))
	}

	p.TotalInvested, _ = decimal.NewFromString(invested)
	p.AverageBuyPrice, _ = decimal.NewFromString(avgPrice)
	return &p, nil
}

func scanCompany(row rowScanner) (*types.Company, error) {
	var c types.Company
	var sharePrice, closing, prevClosing, tradedValue string

	err := row.Scan(&c.ID, &c.Symbol, &c.Name, &sharePrice, &closing,
		&prevClosing, &c.PriceChange, &c.TotalShares,
		&c.AvailableShares, &c.TradedVolume, &tradedValue,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan company: %w", mapPgError(err))
	}

	c.SharePrice, _ = decimal.NewFromString(sharePrice)
	c.ClosingPrice, _ = decimal.NewFromString(closing)
	c.PreviousClosingPrice, _ = decimal.NewFromString(prevClosing)
	c.TradedValue, _ = decimal.NewFromString(tradedValue)
	return &c, nil
}

func scanTrade(row rowScanner) (*types.Trade, error) {
	var t types.Trade
	var requested, executed, fees, total string

	err := row.Scan(&t.ID, &t.UserID, &t.CompanyID, &t.Side, &t.PriceMode,
		&requested, &executed, &t.Quantity, &fees, &total,
		&t.Status, &t.TransactionID, &t.ClientRef, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan trade: %w", mapPgError(err))
	}

	t.RequestedPrice, _ = decimal.NewFromString(requested)
	t.ExecutedPrice, _ = decimal.NewFromString(executed)
	t.Fees, _ = decimal.NewFromString(fees)
	t.TotalAmount, _ = decimal.NewFromString(total)
	return &t, nil
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var tx types.Transaction
	var amount string
	var metadata []byte

	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &amount, &tx.Status,
		&tx.Provider, &tx.ProviderRef, &metadata, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", mapPgError(err))
	}

	tx.Amount, _ = decimal.NewFromString(amount)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return &tx, nil
}
