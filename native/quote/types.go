package quote

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ConversionType identifies the direction of a locked conversion.
type ConversionType string

const (
	// ConversionBuyBase spends the stable side to acquire the base asset.
	ConversionBuyBase ConversionType = "buy_base"
	// ConversionSellBase spends the base asset to acquire the stable side.
	ConversionSellBase ConversionType = "sell_base"
)

// Valid reports whether the conversion type is a known direction.
func (t ConversionType) Valid() bool {
	switch t {
	case ConversionBuyBase, ConversionSellBase:
		return true
	default:
		return false
	}
}

// Pair describes the asset pair and fiat currency the ledger quotes against.
type Pair struct {
	BaseSymbol    string
	BaseDecimals  uint8
	QuoteSymbol   string
	QuoteDecimals uint8
	Fiat          string
	FiatDecimals  uint8
}

// Quote is a locked, user-bound conversion computation. Immutable after lock
// except for the claimed flag; retained forever for audit.
type Quote struct {
	ID           string
	User         common.Address
	Type         ConversionType
	FiatAmount   *big.Int
	OutputAsset  string
	OutputAmount *big.Int
	InputAsset   string
	InputAmount  *big.Int
	FiatRate     *big.Rat
	BaseRate     *big.Rat
	LockedAt     time.Time
	ExpiresAt    time.Time
	Claimed      bool
}

// Copy returns a deep copy to keep callers from mutating ledger state.
func (q *Quote) Copy() *Quote {
	if q == nil {
		return nil
	}
	clone := *q
	if q.FiatAmount != nil {
		clone.FiatAmount = new(big.Int).Set(q.FiatAmount)
	}
	if q.OutputAmount != nil {
		clone.OutputAmount = new(big.Int).Set(q.OutputAmount)
	}
	if q.InputAmount != nil {
		clone.InputAmount = new(big.Int).Set(q.InputAmount)
	}
	if q.FiatRate != nil {
		clone.FiatRate = new(big.Rat).Set(q.FiatRate)
	}
	if q.BaseRate != nil {
		clone.BaseRate = new(big.Rat).Set(q.BaseRate)
	}
	return &clone
}

// MinOutput applies a slippage tolerance band, in basis points, to the quoted
// output. A swap executed against this quote uses the result as its minimum
// acceptable output.
func (q *Quote) MinOutput(toleranceBps uint32) *big.Int {
	if q == nil || q.OutputAmount == nil {
		return big.NewInt(0)
	}
	if toleranceBps == 0 || toleranceBps >= 10_000 {
		return new(big.Int).Set(q.OutputAmount)
	}
	scaled := new(big.Int).Mul(q.OutputAmount, big.NewInt(int64(toleranceBps)))
	return scaled.Quo(scaled, big.NewInt(10_000))
}

// Record is the persisted audit row for a quote. Rates are stored as decimal
// strings to survive round-tripping through the database.
type Record struct {
	ID           string
	User         common.Address
	Type         string
	FiatAmount   string
	OutputAsset  string
	OutputAmount string
	InputAsset   string
	InputAmount  string
	FiatRate     string
	BaseRate     string
	LockedAt     time.Time
	ExpiresAt    time.Time
	Claimed      bool
}
