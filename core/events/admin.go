package events

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeRelayerSet is emitted when a relayer authorisation toggles.
	TypeRelayerSet = "admin.relayer_set"
	// TypePoolToggled is emitted when a pool's allowlist entry changes.
	TypePoolToggled = "admin.pool_toggled"
	// TypePauseChanged is emitted when an operator pauses or resumes a component.
	TypePauseChanged = "admin.pause_changed"
	// TypeTxLimitSet is emitted when a per-transaction spending cap changes.
	TypeTxLimitSet = "admin.tx_limit_set"
)

// RelayerSet captures a relayer authorisation toggle.
type RelayerSet struct {
	Relayer    common.Address
	Authorized bool
}

// EventType satisfies the events.Event interface.
func (RelayerSet) EventType() string { return TypeRelayerSet }

// Attributes renders the toggle payload.
func (e RelayerSet) Attributes() map[string]string {
	return map[string]string{
		"relayer":    e.Relayer.Hex(),
		"authorized": strconv.FormatBool(e.Authorized),
	}
}

// PoolToggled captures an allowlist change for a settlement venue.
type PoolToggled struct {
	PoolID  common.Hash
	Enabled bool
}

// EventType satisfies the events.Event interface.
func (PoolToggled) EventType() string { return TypePoolToggled }

// Attributes renders the toggle payload.
func (e PoolToggled) Attributes() map[string]string {
	return map[string]string{
		"poolId":  e.PoolID.Hex(),
		"enabled": strconv.FormatBool(e.Enabled),
	}
}

// PauseChanged captures an operator pause toggle.
type PauseChanged struct {
	Component string
	Paused    bool
}

// EventType satisfies the events.Event interface.
func (PauseChanged) EventType() string { return TypePauseChanged }

// Attributes renders the toggle payload.
func (e PauseChanged) Attributes() map[string]string {
	return map[string]string{
		"component": strings.TrimSpace(e.Component),
		"paused":    strconv.FormatBool(e.Paused),
	}
}

// TxLimitSet captures a per-asset spending cap update.
type TxLimitSet struct {
	Asset string
	Limit string
}

// EventType satisfies the events.Event interface.
func (TxLimitSet) EventType() string { return TypeTxLimitSet }

// Attributes renders the limit payload.
func (e TxLimitSet) Attributes() map[string]string {
	return map[string]string{
		"asset": strings.TrimSpace(e.Asset),
		"limit": strings.TrimSpace(e.Limit),
	}
}
