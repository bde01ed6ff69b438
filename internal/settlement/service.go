package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/calc"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/metrics"
	"github.com/leafsii/auction-house/internal/repository"
	"github.com/leafsii/auction-house/internal/store"
	"github.com/leafsii/auction-house/internal/token"
)

type Options struct {
	// ReceiptTTL bounds how long receipts stay in the cache.
	ReceiptTTL time.Duration
	// VerifySignatures requires every declared signer to carry a valid
	// signature over Request.Message. Without it declared signers are trusted.
	VerifySignatures bool
	Now              func() time.Time
}

// Service settles sales on a ledger and records the outcome. Only the
// ledger write is atomic; history, cache and events follow a commit and
// their failures are logged, never returned.
type Service struct {
	ledger  *ledger.Store
	engine  *auctionhouse.Engine
	history repository.History
	cache   *store.Cache
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	opts    Options
}

// NewService wires a service. cache and m may be nil.
func NewService(l *ledger.Store, history repository.History, cache *store.Cache, m *metrics.Metrics, logger *zap.SugaredLogger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		ledger:  l,
		engine:  auctionhouse.NewEngine(logger.Named("engine")),
		history: history,
		cache:   cache,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

func (s *Service) Ledger() *ledger.Store {
	return s.ledger
}

// Execute settles req in one ledger transaction.
func (s *Service) Execute(ctx context.Context, req Request) (*Record, error) {
	start := s.opts.Now()
	path := req.Path()

	receipt, err := s.execute(ctx, &req)
	if err != nil {
		s.logger.Infow("Settlement rejected",
			"path", path,
			"auction_house", req.AuctionHouse,
			"buyer", req.Buyer,
			"seller", req.Seller,
			"mint", req.TokenMint,
			"price", req.Price,
			"code", ErrorCode(err),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.RecordSettlementFailure(ctx, string(path), ErrorCode(err), s.opts.Now().Sub(start))
		}
		return nil, err
	}

	rec, err := newRecord(receipt, s.opts.Now())
	if err != nil {
		s.logger.Errorw("Settled sale has no record", "buyer", receipt.Buyer, "seller", receipt.Seller, "error", err)
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}
	s.afterCommit(ctx, rec, start)
	return rec, nil
}

func (s *Service) execute(ctx context.Context, req *Request) (*auctionhouse.Receipt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if s.opts.VerifySignatures {
		if err := req.verifySignatures(); err != nil {
			return nil, err
		}
	}

	var receipt *auctionhouse.Receipt
	err := s.ledger.Execute(ctx, req.signerKeys(), func(tx *ledger.Txn) error {
		house, err := auctionhouse.LoadMarketplace(tx, req.AuctionHouse)
		if err != nil {
			return err
		}
		terms := auctionhouse.SaleRequest{
			Buyer:        req.Buyer,
			Seller:       req.Seller,
			TokenMint:    req.TokenMint,
			TokenAccount: req.TokenAccount,
			Price:        req.Price,
			TokenSize:    req.TokenSize,
			PublicBid:    req.PublicBid,
		}

		if req.Path() == auctionhouse.PathDirect {
			accts, args := auctionhouse.ResolveSale(tx, house, house, req.Price, terms)
			receipt, err = s.engine.ExecuteSale(tx, house, accts, args)
			return err
		}

		listing := house
		if req.listing() != house.Address {
			if listing, err = auctionhouse.LoadMarketplace(tx, req.listing()); err != nil {
				return err
			}
		}
		record, _ := auctionhouse.AuctioneerAddress(house.Address, req.Auctioneer)
		accts, args := auctionhouse.ResolveSale(tx, house, listing, auctionhouse.AuctionPrice, terms)
		receipt, err = s.engine.ExecuteSaleWithAuctioneer(tx, listing, house, req.Auctioneer, record, accts, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Service) afterCommit(ctx context.Context, rec *Record, start time.Time) {
	r := rec.Receipt
	s.logger.Infow("Sale settled",
		"id", rec.ID,
		"path", rec.Path,
		"auction_house", r.AuctionHouse,
		"buyer", r.Buyer,
		"seller", r.Seller,
		"mint", r.TokenMint,
		"price", r.Price,
		"royalties", r.RoyaltyTotal,
		"house_fee", r.HouseFee,
		"seller_proceeds", r.SellerProceeds,
		"digest", rec.Digest,
	)

	if row, err := rec.settlement(); err != nil {
		s.logger.Errorw("Failed to convert settlement", "id", rec.ID, "error", err)
	} else if err := s.history.StoreSettlement(ctx, row); err != nil {
		s.logger.Errorw("Failed to store settlement history", "id", rec.ID, "error", err)
	}

	if s.cache != nil {
		if err := s.cache.SetReceipt(ctx, rec.ID, rec, s.opts.ReceiptTTL); err != nil {
			s.logger.Warnw("Failed to cache receipt", "id", rec.ID, "error", err)
		}
		for _, w := range []ledger.Pubkey{r.Buyer, r.Seller} {
			if err := s.cache.PushWalletSale(ctx, w.String(), rec.ID); err != nil {
				s.logger.Warnw("Failed to index wallet sale", "id", rec.ID, "wallet", w, "error", err)
			}
		}
		event := Event{Type: EventSaleExecuted, Record: rec}
		for _, ch := range []string{store.ChannelSaleExecuted, store.WalletChannel(r.Buyer.String()), store.WalletChannel(r.Seller.String())} {
			if err := s.cache.Publish(ctx, ch, event); err != nil {
				s.logger.Warnw("Failed to publish settlement", "id", rec.ID, "channel", ch, "error", err)
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSettlement(ctx, metrics.Settlement{
			Path:         string(rec.Path),
			TreasuryMint: r.TreasuryMint.String(),
			Price:        r.Price,
			Royalties:    r.RoyaltyTotal,
			HouseFee:     r.HouseFee,
		}, s.opts.Now().Sub(start))
	}
}

// Get returns the settlement with id, from the cache when it holds it.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	fill := func(ctx context.Context) (interface{}, error) {
		row, err := s.history.GetSettlement(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return recordFromSettlement(row)
	}

	if s.cache == nil {
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		return v.(*Record), nil
	}

	var rec Record
	if err := s.cache.Load(ctx, store.KeyReceipt, id, s.opts.ReceiptTTL, &rec, fill); err != nil {
		return nil, err
	}
	return &rec, nil
}

// WalletSales pages the settlements where wallet bought or sold.
func (s *Service) WalletSales(ctx context.Context, wallet ledger.Pubkey, limit int, cursor string) ([]*Record, string, error) {
	rows, next, err := s.history.GetWalletSettlements(ctx, wallet.String(), limit, cursor)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list wallet sales: %w", err)
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		rec, err := recordFromSettlement(&rows[i])
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	return out, next, nil
}

// Account returns the committed account at key.
func (s *Service) Account(ctx context.Context, key ledger.Pubkey) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ledger.Account(key)
}

// Marketplace returns the auction house record at address.
func (s *Service) Marketplace(ctx context.Context, address ledger.Pubkey) (*auctionhouse.Marketplace, error) {
	var m *auctionhouse.Marketplace
	err := s.ledger.View(ctx, func(tx *ledger.Txn) error {
		var err error
		m, err = auctionhouse.LoadMarketplace(tx, address)
		return err
	})
	return m, err
}

type QuoteRequest struct {
	AuctionHouse ledger.Pubkey
	TokenMint    ledger.Pubkey
	Price        uint64
}

// Quote is the split a sale at a price would settle to, given the current
// marketplace fee and asset royalties.
type Quote struct {
	AuctionHouse ledger.Pubkey      `json:"auction_house"`
	TokenMint    ledger.Pubkey      `json:"token_mint"`
	TreasuryMint ledger.Pubkey      `json:"treasury_mint"`
	Creators     []ledger.Pubkey    `json:"creators"`
	Split        auctionhouse.Split `json:"split"`
	Preview      calc.SplitPreview  `json:"preview"`
}

func (s *Service) Quote(ctx context.Context, q QuoteRequest) (*Quote, error) {
	var out *Quote
	err := s.ledger.View(ctx, func(tx *ledger.Txn) error {
		house, err := auctionhouse.LoadMarketplace(tx, q.AuctionHouse)
		if err != nil {
			return err
		}
		mdAddr, _ := metadata.Address(q.TokenMint)
		md, err := metadata.Load(tx, mdAddr, q.TokenMint)
		if err != nil {
			return auctionhouse.ErrMetadataDoesntExist.Wrap(err)
		}

		shares := make([]uint16, len(md.Creators))
		creators := make([]ledger.Pubkey, len(md.Creators))
		names := make([]string, len(md.Creators))
		for i, c := range md.Creators {
			shares[i] = c.Share
			creators[i] = c.Address
			names[i] = c.Address.String()
		}
		split, err := auctionhouse.ComputeSplit(q.Price, md.SellerFeeBasisPoints, shares, house.SellerFeeBasisPoints)
		if err != nil {
			return err
		}

		decimals := uint8(calc.NativeDecimals)
		if !house.IsNative() {
			mint, err := token.UnpackMint(tx.Account(house.TreasuryMint).Data)
			if err != nil {
				return fmt.Errorf("failed to read treasury mint: %w", err)
			}
			decimals = mint.Decimals
		}

		out = &Quote{
			AuctionHouse: house.Address,
			TokenMint:    q.TokenMint,
			TreasuryMint: house.TreasuryMint,
			Creators:     creators,
			Split:        split,
			Preview:      calc.PreviewSplit(&split, names, md.SellerFeeBasisPoints, house.SellerFeeBasisPoints, decimals),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Candle returns the latest price candle of a marketplace for interval.
func (s *Service) Candle(ctx context.Context, house ledger.Pubkey, interval string) (*store.Candle, error) {
	if s.cache == nil {
		return nil, ErrNotFound
	}
	c, err := s.cache.GetCandle(ctx, house.String(), interval)
	if errors.Is(err, store.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Ready reports whether the service's dependencies answer.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.history.Ping(ctx); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// ErrorCode names err for metrics and API responses.
func ErrorCode(err error) string {
	var ahErr *auctionhouse.Error
	if errors.As(err, &ahErr) {
		return ahErr.Name
	}
	codes := []struct {
		target error
		code   string
	}{
		{ErrInvalidRequest, "InvalidRequest"},
		{ErrInvalidSignature, "InvalidSignature"},
		{ErrNotFound, "NotFound"},
		{ledger.ErrInsufficientFunds, "InsufficientFunds"},
		{ledger.ErrMissingSignature, "MissingRequiredSignature"},
		{ledger.ErrOwnerMismatch, "OwnerMismatch"},
		{ledger.ErrAccountAlreadyInUse, "AccountAlreadyInUse"},
		{ledger.ErrArithmeticOverflow, "ArithmeticOverflow"},
		{token.ErrInsufficientTokens, "InsufficientTokens"},
		{token.ErrMintMismatch, "MintMismatch"},
		{token.ErrAccountFrozen, "AccountFrozen"},
		{token.ErrInvalidOwner, "InvalidOwner"},
		{context.Canceled, "Canceled"},
		{context.DeadlineExceeded, "DeadlineExceeded"},
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "Internal"
}
