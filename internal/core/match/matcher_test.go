package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

const testAddr = "TXYZa1b2c3d4e5f6g7h8i9j0k1l2m3n4o5"

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPolicy() Policy {
	return Policy{Contract: domain.USDTContract, Epsilon: DefaultEpsilon}
}

func pendingWatch(id string, addr string, expected string, createdAt time.Time) *domain.Watch {
	return &domain.Watch{
		ID:             id,
		Address:        addr,
		ExpectedAmount: amount(expected),
		Status:         domain.WatchStatusPending,
		CreatedAt:      createdAt,
	}
}

func usdtTransfer(hash string, to string, amt string, ts int64) domain.Transfer {
	return domain.Transfer{
		TxHash:         hash,
		To:             to,
		Contract:       domain.USDTContract,
		Amount:         amount(amt),
		Decimals:       6,
		BlockTimestamp: ts,
	}
}

func TestMatch_ExactAmount(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "10.500000", now)}
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "10.500000", 1000)}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].WatchID != "w1" || results[0].TxHash != "tx1" {
		t.Errorf("unexpected binding: %+v", results[0])
	}
	if !results[0].Amount.Equal(amount("10.5")) {
		t.Errorf("expected matched amount 10.5, got %s", results[0].Amount)
	}
}

func TestMatch_AmountOutsideEpsilon(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "10.50", now)}
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "10.52", 1000)}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 0 {
		t.Fatalf("expected no match for 10.52 vs 10.50 with epsilon 0.01, got %d", len(results))
	}
}

func TestMatch_AmountWithinEpsilon(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "10.50", now)}
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "10.509999", 1000)}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 1 {
		t.Fatalf("expected match within epsilon, got %d", len(results))
	}
}

func TestMatch_TwoWatchesTwoTransfers_NoDoubleBinding(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{
		pendingWatch("w1", testAddr, "5.0", now),
		pendingWatch("w2", testAddr, "5.0", now.Add(time.Second)),
	}
	transfers := []domain.Transfer{
		usdtTransfer("tx1", testAddr, "5.0", 1000),
		usdtTransfer("tx2", testAddr, "5.0", 2000),
	}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].TxHash == results[1].TxHash {
		t.Errorf("same transfer bound to two watches: %s", results[0].TxHash)
	}
	// Oldest watch takes the earliest transfer.
	if results[0].WatchID != "w1" || results[0].TxHash != "tx1" {
		t.Errorf("expected w1<-tx1, got %+v", results[0])
	}
	if results[1].WatchID != "w2" || results[1].TxHash != "tx2" {
		t.Errorf("expected w2<-tx2, got %+v", results[1])
	}
}

func TestMatch_OldestWatchFirst(t *testing.T) {
	now := time.Now()
	// Deliberately pass watches newest-first; the matcher must reorder.
	watches := []*domain.Watch{
		pendingWatch("newer", testAddr, "7.0", now.Add(time.Minute)),
		pendingWatch("older", testAddr, "7.0", now),
	}
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "7.0", 1000)}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].WatchID != "older" {
		t.Errorf("expected oldest watch to take the transfer, got %s", results[0].WatchID)
	}
}

func TestMatch_ClaimedHashNeverReassigned(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "5.0", now)}
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "5.0", 1000)}
	claimed := map[string]bool{"tx1": true}

	results := Match(transfers, watches, claimed, testPolicy())
	if len(results) != 0 {
		t.Fatalf("claimed transfer must not be reassigned, got %d matches", len(results))
	}
}

func TestMatch_WrongContractIgnored(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "5.0", now)}
	tr := usdtTransfer("tx1", testAddr, "5.0", 1000)
	tr.Contract = "TSomeOtherTokenContractAddress0000"

	results := Match([]domain.Transfer{tr}, watches, nil, testPolicy())
	if len(results) != 0 {
		t.Fatalf("transfer with wrong contract must not match, got %d", len(results))
	}
}

func TestMatch_OtherAddressIgnored(t *testing.T) {
	now := time.Now()
	watches := []*domain.Watch{pendingWatch("w1", testAddr, "5.0", now)}
	transfers := []domain.Transfer{usdtTransfer("tx1", "TAnotherReceivingAddress0000000000", "5.0", 1000)}

	results := Match(transfers, watches, nil, testPolicy())
	if len(results) != 0 {
		t.Fatalf("transfer to another address must not match, got %d", len(results))
	}
}

func TestMatch_NonPendingWatchSkipped(t *testing.T) {
	now := time.Now()
	w := pendingWatch("w1", testAddr, "5.0", now)
	w.Status = domain.WatchStatusCompleted
	transfers := []domain.Transfer{usdtTransfer("tx1", testAddr, "5.0", 1000)}

	results := Match(transfers, []*domain.Watch{w}, nil, testPolicy())
	if len(results) != 0 {
		t.Fatalf("completed watch must never rematch, got %d", len(results))
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	if got := Match(nil, nil, nil, testPolicy()); got != nil {
		t.Errorf("expected nil for empty inputs, got %v", got)
	}
}
