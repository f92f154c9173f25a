package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeSwapSubmitted is emitted for every swap accepted by the router.
	TypeSwapSubmitted = "swap.submitted"
	// TypeImmediateTake is emitted when swap output is paid straight to the user.
	TypeImmediateTake = "swap.immediate_take"
	// TypeTokensTaken is emitted when a claim balance is converted to a transfer.
	TypeTokensTaken = "claims.taken"
	// TypeVaultPayment is emitted when the vault funds a swap's input leg.
	TypeVaultPayment = "vault.payment"
	// TypeVaultFunded is emitted on treasury top-ups.
	TypeVaultFunded = "vault.funded"
)

// SwapSubmitted records a completed settlement pass through the router.
type SwapSubmitted struct {
	PoolID        common.Hash
	TransactionID string
	User          common.Address
	Mode          string
	ImmediateTake bool
	AmountIn      *big.Int
	AmountOut     *big.Int
}

// EventType satisfies the events.Event interface.
func (SwapSubmitted) EventType() string { return TypeSwapSubmitted }

// Attributes renders the submission payload.
func (e SwapSubmitted) Attributes() map[string]string {
	return map[string]string{
		"poolId":        e.PoolID.Hex(),
		"transactionId": strings.TrimSpace(e.TransactionID),
		"user":          e.User.Hex(),
		"mode":          strings.TrimSpace(e.Mode),
		"immediateTake": strconv.FormatBool(e.ImmediateTake),
		"amountIn":      bigIntString(e.AmountIn),
		"amountOut":     bigIntString(e.AmountOut),
	}
}

// ImmediateTake records a direct payout of swap output to the user.
type ImmediateTake struct {
	TransactionID string
	User          common.Address
	Asset         string
	Amount        *big.Int
}

// EventType satisfies the events.Event interface.
func (ImmediateTake) EventType() string { return TypeImmediateTake }

// Attributes renders the payout payload.
func (e ImmediateTake) Attributes() map[string]string {
	return map[string]string{
		"transactionId": strings.TrimSpace(e.TransactionID),
		"user":          e.User.Hex(),
		"asset":         strings.TrimSpace(e.Asset),
		"amount":        bigIntString(e.Amount),
	}
}

// TokensTaken records the draw-down of a claim balance.
type TokensTaken struct {
	Asset   string
	From    common.Address
	To      common.Address
	Amount  *big.Int
	Relayer common.Address
}

// EventType satisfies the events.Event interface.
func (TokensTaken) EventType() string { return TypeTokensTaken }

// Attributes renders the take payload.
func (e TokensTaken) Attributes() map[string]string {
	return map[string]string{
		"asset":   strings.TrimSpace(e.Asset),
		"from":    e.From.Hex(),
		"to":      e.To.Hex(),
		"amount":  bigIntString(e.Amount),
		"relayer": e.Relayer.Hex(),
	}
}

// VaultPayment records a treasury-funded settlement leg.
type VaultPayment struct {
	Asset  string
	Amount *big.Int
	To     common.Address
}

// EventType satisfies the events.Event interface.
func (VaultPayment) EventType() string { return TypeVaultPayment }

// Attributes renders the payment payload.
func (e VaultPayment) Attributes() map[string]string {
	return map[string]string{
		"asset":  strings.TrimSpace(e.Asset),
		"amount": bigIntString(e.Amount),
		"to":     e.To.Hex(),
	}
}

// VaultFunded records a treasury top-up.
type VaultFunded struct {
	Asset  string
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (VaultFunded) EventType() string { return TypeVaultFunded }

// Attributes renders the funding payload.
func (e VaultFunded) Attributes() map[string]string {
	return map[string]string{
		"asset":  strings.TrimSpace(e.Asset),
		"amount": bigIntString(e.Amount),
	}
}
