package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("settlement not found")

// Settlement is one row of settlement history. Amounts are base units of the
// treasury mint.
type Settlement struct {
	Seq                 int64           `json:"-"`
	ID                  string          `json:"id"`
	Path                string          `json:"path"`
	AuctionHouse        string          `json:"auction_house"`
	ListingAuctionHouse string          `json:"listing_auction_house"`
	Buyer               string          `json:"buyer"`
	Seller              string          `json:"seller"`
	TokenMint           string          `json:"token_mint"`
	TreasuryMint        string          `json:"treasury_mint"`
	Price               uint64          `json:"price"`
	TokenSize           uint64          `json:"token_size"`
	RoyaltyTotal        uint64          `json:"royalty_total"`
	HouseFee            uint64          `json:"house_fee"`
	SellerProceeds      uint64          `json:"seller_proceeds"`
	Digest              string          `json:"digest"`
	Receipt             json.RawMessage `json:"receipt"`
	SettledAt           time.Time       `json:"settled_at"`
}

// History stores and queries settlement history.
type History interface {
	StoreSettlement(ctx context.Context, s Settlement) error
	GetSettlement(ctx context.Context, id string) (*Settlement, error)
	// GetWalletSettlements pages the settlements where wallet was buyer or
	// seller, newest first. cursor is empty or a value previously returned.
	GetWalletSettlements(ctx context.Context, wallet string, limit int, cursor string) ([]Settlement, string, error)
	Ping(ctx context.Context) error
}

type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Open connects to Postgres through the pgx stdlib driver.
func Open(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewRepository(db, logger), nil
}

// Migrate applies the goose migrations found in dir.
func Migrate(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) StoreSettlement(ctx context.Context, s Settlement) error {
	query := `
		INSERT INTO settlements (
			id, path, auction_house, listing_auction_house, buyer, seller, token_mint, treasury_mint,
			price, token_size, royalty_total, house_fee, seller_proceeds, digest, receipt, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Path,
		s.AuctionHouse,
		s.ListingAuctionHouse,
		s.Buyer,
		s.Seller,
		s.TokenMint,
		s.TreasuryMint,
		strconv.FormatUint(s.Price, 10),
		strconv.FormatUint(s.TokenSize, 10),
		strconv.FormatUint(s.RoyaltyTotal, 10),
		strconv.FormatUint(s.HouseFee, 10),
		strconv.FormatUint(s.SellerProceeds, 10),
		s.Digest,
		[]byte(s.Receipt),
		s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store settlement: %w", err)
	}

	r.logger.Debugw("Stored settlement", "id", s.ID, "path", s.Path)
	return nil
}

const selectSettlement = `
	SELECT seq, id, path, auction_house, listing_auction_house, buyer, seller, token_mint, treasury_mint,
		price::text, token_size::text, royalty_total::text, house_fee::text, seller_proceeds::text,
		digest, receipt, settled_at
	FROM settlements
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSettlement(row scanner) (*Settlement, error) {
	var s Settlement
	var price, size, royalties, fee, proceeds string
	var receipt []byte

	err := row.Scan(
		&s.Seq,
		&s.ID,
		&s.Path,
		&s.AuctionHouse,
		&s.ListingAuctionHouse,
		&s.Buyer,
		&s.Seller,
		&s.TokenMint,
		&s.TreasuryMint,
		&price,
		&size,
		&royalties,
		&fee,
		&proceeds,
		&s.Digest,
		&receipt,
		&s.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&s.Price, price},
		{&s.TokenSize, size},
		{&s.RoyaltyTotal, royalties},
		{&s.HouseFee, fee},
		{&s.SellerProceeds, proceeds},
	} {
		if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", f.src, err)
		}
	}
	s.Receipt = json.RawMessage(receipt)
	return &s, nil
}

func (r *Repository) GetSettlement(ctx context.Context, id string) (*Settlement, error) {
	s, err := scanSettlement(r.db.QueryRowContext(ctx, selectSettlement+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return s, nil
}

func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 1<<63 - 1, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid cursor format: %q", cursor)
	}
	return seq, nil
}

func (r *Repository) GetWalletSettlements(ctx context.Context, wallet string, limit int, cursor string) ([]Settlement, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := selectSettlement + `
		WHERE (buyer = $1 OR seller = $1) AND seq < $2
		ORDER BY seq DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, wallet, before, limit+1) // +1 to check if there are more
	if err != nil {
		return nil, "", fmt.Errorf("failed to query wallet settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	hasMore := false
	for rows.Next() {
		if len(out) >= limit {
			hasMore = true
			break
		}
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan settlement: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration error: %w", err)
	}

	var next string
	if hasMore && len(out) > 0 {
		next = strconv.FormatInt(out[len(out)-1].Seq, 10)
	}
	return out, next, nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
