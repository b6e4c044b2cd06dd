package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func tradeAt(id, runID string, positionID int, exit time.Time, net float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:    id,
		RunID:      runID,
		PositionID: positionID,
		Role:       domain.RoleLong,
		Direction:  domain.DirectionLong,
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
		ExitReason: domain.ExitReasonTargetHit,
		NetPnL:     net,
	}
}

func TestTradeRecordStore_InsertAndGet(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()
	stop := 95.0

	trade := tradeAt("trade1", "run1", 1, time.Unix(1000, 0).UTC(), 50)
	trade.Stop = &stop

	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "trade1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.NetPnL != 50 {
		t.Errorf("NetPnL mismatch: got %f, want %f", got.NetPnL, 50.0)
	}

	// Stored copy is independent of the caller's record
	stop = 1
	if *got.Stop != 95 {
		t.Errorf("Stop mutated through caller pointer: %v", *got.Stop)
	}
}

func TestTradeRecordStore_DuplicateKey(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := tradeAt("trade1", "run1", 1, time.Unix(1000, 0), 0)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, trade)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeRecordStore_NotFound(t *testing.T) {
	store := NewTradeRecordStore()

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTradeRecordStore_InsertBulkAtomic(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()
	at := time.Unix(1000, 0)

	err := store.InsertBulk(ctx, []*domain.TradeRecord{
		tradeAt("t1", "run1", 1, at, 0),
		tradeAt("t1", "run1", 2, at, 0),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "run1")
	if len(got) != 0 {
		t.Errorf("Expected empty store after failed batch, got %d", len(got))
	}
}

func TestTradeRecordStore_GetByRunIDCloseOrder(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()
	at := time.Unix(1000, 0).UTC()

	trades := []*domain.TradeRecord{
		tradeAt("t3", "run1", 3, at.Add(time.Hour), 0),
		tradeAt("t2", "run1", 2, at, 0),
		tradeAt("t1", "run1", 1, at, 0),
		tradeAt("x1", "run2", 1, at, 0),
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(got))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if got[i].TradeID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].TradeID, want)
		}
	}
}
