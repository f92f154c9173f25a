package ticket

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testMinter = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testHook   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testHolder = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestLedger() *Ledger {
	return NewLedger(testMinter, testHook)
}

func TestMintRequiresMinter(t *testing.T) {
	ledger := newTestLedger()
	if err := ledger.Mint(context.Background(), testHolder, "UPI-1", testHook); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter, got %v", err)
	}
	if err := ledger.Mint(context.Background(), testMinter, "UPI-1", testHook); err != nil {
		t.Fatalf("mint: %v", err)
	}
	owner, err := ledger.OwnerOf("UPI-1")
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != testHook {
		t.Fatalf("unexpected owner: %s", owner.Hex())
	}
}

func TestMintTombstoneBlocksReissue(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	if err := ledger.Mint(ctx, testMinter, "UPI-2", testHook); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(ctx, testMinter, "UPI-2", testHolder); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted, got %v", err)
	}
	if err := ledger.Burn(ctx, testHook, "UPI-2"); err != nil {
		t.Fatalf("burn: %v", err)
	}
	// Consumption must not reopen the id for minting.
	if err := ledger.Mint(ctx, testMinter, "UPI-2", testHook); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted after burn, got %v", err)
	}
}

func TestBurnRequiresHookAndActiveTicket(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	if err := ledger.Burn(ctx, testHook, "UPI-3"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("expected ErrNotExists, got %v", err)
	}
	if err := ledger.Mint(ctx, testMinter, "UPI-3", testHook); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(ctx, testMinter, "UPI-3"); !errors.Is(err, ErrNotHook) {
		t.Fatalf("expected ErrNotHook, got %v", err)
	}
	if err := ledger.Burn(ctx, testHook, "UPI-3"); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := ledger.OwnerOf("UPI-3"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("expected ErrNotExists after burn, got %v", err)
	}
	if err := ledger.Burn(ctx, testHook, "UPI-3"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("expected ErrNotExists on double burn, got %v", err)
	}
	if !ledger.EverMinted("UPI-3") {
		t.Fatal("tombstone must survive burn")
	}
}

func TestReinstateRestoresOwnership(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	if err := ledger.Mint(ctx, testMinter, "UPI-4", testHook); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(ctx, testHook, "UPI-4"); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := ledger.Reinstate(ctx, testHolder, "UPI-4", testHook); !errors.Is(err, ErrNotHook) {
		t.Fatalf("expected ErrNotHook, got %v", err)
	}
	if err := ledger.Reinstate(ctx, testHook, "UPI-4", testHook); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	owner, err := ledger.OwnerOf("UPI-4")
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != testHook {
		t.Fatalf("unexpected owner after reinstate: %s", owner.Hex())
	}
	// Reinstating an id that was never minted must fail.
	if err := ledger.Reinstate(ctx, testHook, "UPI-never", testHook); !errors.Is(err, ErrNotExists) {
		t.Fatalf("expected ErrNotExists, got %v", err)
	}
}

func TestTransferLockRestrictsRecipient(t *testing.T) {
	ledger := newTestLedger()
	ledger.SetTransferLock(true)
	ctx := context.Background()
	if err := ledger.Mint(ctx, testMinter, "UPI-5", testHolder); err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	if err := ledger.Transfer(ctx, testHolder, "UPI-5", other); !errors.Is(err, ErrTransferRestricted) {
		t.Fatalf("expected ErrTransferRestricted, got %v", err)
	}
	if err := ledger.Transfer(ctx, other, "UPI-5", testHook); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := ledger.Transfer(ctx, testHolder, "UPI-5", testHook); err != nil {
		t.Fatalf("transfer to hook: %v", err)
	}
	owner, err := ledger.OwnerOf("UPI-5")
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != testHook {
		t.Fatalf("unexpected owner: %s", owner.Hex())
	}
}

func TestMintRejectsEmptyID(t *testing.T) {
	ledger := newTestLedger()
	if err := ledger.Mint(context.Background(), testMinter, "   ", testHook); !errors.Is(err, ErrInvalidTransactionID) {
		t.Fatalf("expected ErrInvalidTransactionID, got %v", err)
	}
}
