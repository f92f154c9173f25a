package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeQuoteLocked is emitted whenever a conversion quote is locked for a user.
	TypeQuoteLocked = "quote.locked"
	// TypeQuoteClaimed is emitted when a relayer claims a locked quote.
	TypeQuoteClaimed = "quote.claimed"
)

// QuoteLocked captures a freshly locked fiat conversion quote.
type QuoteLocked struct {
	QuoteID      string
	User         common.Address
	Type         string
	FiatAmount   *big.Int
	OutputAsset  string
	OutputAmount *big.Int
	InputAsset   string
	InputAmount  *big.Int
	ExpiresAt    int64
}

// EventType satisfies the events.Event interface.
func (QuoteLocked) EventType() string { return TypeQuoteLocked }

// Attributes renders the locked quote payload.
func (e QuoteLocked) Attributes() map[string]string {
	return map[string]string{
		"quoteId":      strings.TrimSpace(e.QuoteID),
		"user":         e.User.Hex(),
		"type":         strings.TrimSpace(e.Type),
		"fiatAmount":   bigIntString(e.FiatAmount),
		"outputAsset":  strings.TrimSpace(e.OutputAsset),
		"outputAmount": bigIntString(e.OutputAmount),
		"inputAsset":   strings.TrimSpace(e.InputAsset),
		"inputAmount":  bigIntString(e.InputAmount),
		"expiresAt":    strconv.FormatInt(e.ExpiresAt, 10),
	}
}

// QuoteClaimed captures the single permitted claim of a quote.
type QuoteClaimed struct {
	QuoteID string
	Relayer common.Address
}

// EventType satisfies the events.Event interface.
func (QuoteClaimed) EventType() string { return TypeQuoteClaimed }

// Attributes renders the claimed quote payload.
func (e QuoteClaimed) Attributes() map[string]string {
	return map[string]string{
		"quoteId": strings.TrimSpace(e.QuoteID),
		"relayer": e.Relayer.Hex(),
	}
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
