package uniswap

import (
	"fmt"
	"math"
	"math/big"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// q96 is 2^96, the fixed-point scale of sqrtPriceX96.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PoolState is one reading of a pool's active price and in-range liquidity.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// Pricing converts between raw pool units and display prices.
type Pricing struct {
	Token0Decimals int
	Token1Decimals int
	// Invert quotes token0 per token1 instead of token1 per token0.
	Invert bool
}

// sqrtRaw returns sqrtPriceX96 / 2^96 as a float.
func sqrtRaw(sqrtPriceX96 *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96).Float64()
	return f
}

func (p Pricing) scale() float64 {
	return math.Pow10(p.Token0Decimals - p.Token1Decimals)
}

// Price returns the display price for sqrtPriceX96.
func (p Pricing) Price(sqrtPriceX96 *big.Int) float64 {
	s := sqrtRaw(sqrtPriceX96)
	human := s * s * p.scale()
	if p.Invert {
		if human == 0 {
			return 0
		}
		return 1 / human
	}
	return human
}

// rawSqrt maps a display price back to sqrt of the raw token1/token0 price.
func (p Pricing) rawSqrt(price float64) float64 {
	if p.Invert {
		return math.Sqrt(1 / (price * p.scale()))
	}
	return math.Sqrt(price / p.scale())
}

// baseAmount is the amount of the quoted base asset held by liquidity L
// between display prices lo < hi. For token0 between sqrt prices a < b this
// is L(1/a - 1/b); for token1 it is L(b - a).
func (p Pricing) baseAmount(liquidity, lo, hi float64) float64 {
	a, b := p.rawSqrt(lo), p.rawSqrt(hi)
	if a > b {
		a, b = b, a
	}
	if p.Invert {
		return liquidity * (b - a) / math.Pow10(p.Token1Decimals)
	}
	return liquidity * (1/a - 1/b) / math.Pow10(p.Token0Decimals)
}

// Depth synthesizes levels price bands of width step on each side of the
// pool price, treating the in-range liquidity as constant across them.
// Each level is reported at its band midpoint.
func (p Pricing) Depth(state PoolState, step float64, levels int) (price float64, bids, asks []domain.PriceLevel, err error) {
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return 0, nil, nil, fmt.Errorf("uniswap: sqrtPriceX96 %v: %w", state.SqrtPriceX96, domain.ErrMalformedSnapshot)
	}
	if state.Liquidity == nil || state.Liquidity.Sign() < 0 {
		return 0, nil, nil, fmt.Errorf("uniswap: liquidity %v: %w", state.Liquidity, domain.ErrMalformedSnapshot)
	}
	if step <= 0 || levels <= 0 {
		return 0, nil, nil, fmt.Errorf("uniswap: step %v levels %d: %w", step, levels, domain.ErrInvalidConfig)
	}

	price = p.Price(state.SqrtPriceX96)
	liq, _ := new(big.Float).SetInt(state.Liquidity).Float64()
	if liq == 0 {
		return price, nil, nil, nil
	}

	for k := 0; k < levels; k++ {
		lo, hi := price+float64(k)*step, price+float64(k+1)*step
		asks = append(asks, domain.PriceLevel{Price: (lo + hi) / 2, Size: p.baseAmount(liq, lo, hi)})

		lo, hi = price-float64(k+1)*step, price-float64(k)*step
		if lo <= 0 {
			continue
		}
		bids = append(bids, domain.PriceLevel{Price: (lo + hi) / 2, Size: p.baseAmount(liq, lo, hi)})
	}
	return price, bids, asks, nil
}
