// Package uniswap polls a Uniswap v3 pool and turns its concentrated
// liquidity into synthetic order book depth.
package uniswap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const poolABI = `[
 {"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
  {"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},
  {"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},
  {"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},
  {"name":"unlocked","type":"bool"}]},
 {"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[
  {"name":"","type":"uint128"}]}
]`

// Config configures the pool poller.
type Config struct {
	VenueID      string
	Symbol       string
	RPCURL       string
	PoolAddress  string
	Pricing      Pricing
	Step         float64
	Levels       int
	PollInterval time.Duration
}

// Poller reads slot0 and liquidity on an interval.
type Poller struct {
	cfg    Config
	pool   common.Address
	abi    abi.ABI
	now    func() time.Time
	logger *slog.Logger
}

// NewPoller validates cfg and creates a Poller.
func NewPoller(cfg Config, logger *slog.Logger) (*Poller, error) {
	if !common.IsHexAddress(cfg.PoolAddress) {
		return nil, fmt.Errorf("uniswap: pool address %q: %w", cfg.PoolAddress, domain.ErrInvalidConfig)
	}
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("uniswap: parse abi: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Poller{
		cfg:    cfg,
		pool:   common.HexToAddress(cfg.PoolAddress),
		abi:    parsed,
		now:    time.Now,
		logger: logger.With(slog.String("component", "uniswap"), slog.String("venue", cfg.VenueID)),
	}, nil
}

// VenueID returns the id this poller reports books under.
func (p *Poller) VenueID() string { return p.cfg.VenueID }

// Stream dials the RPC endpoint and polls until ctx is cancelled or a call
// fails. Each poll yields one book and one spot price observation.
func (p *Poller) Stream(ctx context.Context, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	client, err := ethclient.DialContext(ctx, p.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("uniswap: dial rpc: %w", err)
	}
	defer client.Close()

	p.logger.InfoContext(ctx, "uniswap: polling pool",
		slog.String("pool", p.pool.Hex()),
		slog.Duration("interval", p.cfg.PollInterval),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := p.poll(ctx, client, onBook, onTrade); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, client *ethclient.Client, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	state, err := p.readState(ctx, client)
	if err != nil {
		return err
	}
	ts := p.now().UTC()
	book, trade, err := p.toDomain(state, ts)
	if err != nil {
		return err
	}
	if onTrade != nil {
		onTrade(trade)
	}
	if onBook != nil {
		onBook(book)
	}
	return nil
}

func (p *Poller) toDomain(state PoolState, ts time.Time) (domain.VenueBook, domain.TradePrice, error) {
	price, bids, asks, err := p.cfg.Pricing.Depth(state, p.cfg.Step, p.cfg.Levels)
	if err != nil {
		return domain.VenueBook{}, domain.TradePrice{}, err
	}
	book := domain.VenueBook{VenueID: p.cfg.VenueID, Symbol: p.cfg.Symbol, Bids: bids, Asks: asks, Timestamp: ts}
	trade := domain.TradePrice{VenueID: p.cfg.VenueID, Symbol: p.cfg.Symbol, Price: price, Timestamp: ts}
	return book, trade, nil
}

func (p *Poller) readState(ctx context.Context, client *ethclient.Client) (PoolState, error) {
	slot0, err := p.call(ctx, client, "slot0")
	if err != nil {
		return PoolState{}, err
	}
	liq, err := p.call(ctx, client, "liquidity")
	if err != nil {
		return PoolState{}, err
	}
	sqrtPrice, ok1 := slot0[0].(*big.Int)
	liquidity, ok2 := liq[0].(*big.Int)
	if !ok1 || !ok2 {
		return PoolState{}, fmt.Errorf("uniswap: unexpected pool return types: %w", domain.ErrMalformedSnapshot)
	}
	return PoolState{SqrtPriceX96: sqrtPrice, Liquidity: liquidity}, nil
}

func (p *Poller) call(ctx context.Context, client *ethclient.Client, method string) ([]any, error) {
	data, err := p.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("uniswap: pack %s: %w", method, err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &p.pool, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("uniswap: call %s: %w", method, err)
	}
	vals, err := p.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("uniswap: unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("uniswap: %s returned nothing: %w", method, domain.ErrMalformedSnapshot)
	}
	return vals, nil
}
