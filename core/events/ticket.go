package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeTicketMinted is emitted when a payment ticket becomes active.
	TypeTicketMinted = "ticket.minted"
	// TypeTicketConsumed is emitted when the settlement hook burns a ticket.
	TypeTicketConsumed = "ticket.consumed"
)

// TicketMinted captures the issuance of a single-use payment ticket.
type TicketMinted struct {
	TransactionID string
	Owner         common.Address
}

// EventType satisfies the events.Event interface.
func (TicketMinted) EventType() string { return TypeTicketMinted }

// Attributes renders the minted ticket payload.
func (e TicketMinted) Attributes() map[string]string {
	return map[string]string{
		"transactionId": strings.TrimSpace(e.TransactionID),
		"owner":         e.Owner.Hex(),
	}
}

// TicketConsumed captures the one-way burn performed during swap validation.
type TicketConsumed struct {
	TransactionID string
	User          common.Address
}

// EventType satisfies the events.Event interface.
func (TicketConsumed) EventType() string { return TypeTicketConsumed }

// Attributes renders the consumed ticket payload.
func (e TicketConsumed) Attributes() map[string]string {
	return map[string]string{
		"transactionId": strings.TrimSpace(e.TransactionID),
		"user":          e.User.Hex(),
	}
}
