package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuardReserveOrGetMiss(t *testing.T) {
	t.Parallel()

	guard := NewMemoryGuard(time.Hour)

	receipt, found, err := guard.ReserveOrGet(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("ReserveOrGet() error = %v", err)
	}
	if found || receipt != nil {
		t.Fatalf("found = %v, receipt = %v, want miss", found, receipt)
	}
}

func TestMemoryGuardCommitThenGet(t *testing.T) {
	t.Parallel()

	guard := NewMemoryGuard(time.Hour)
	ctx := context.Background()

	if err := guard.Commit(ctx, "key-1", Receipt{CorrelationID: "corr-1"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	receipt, found, err := guard.ReserveOrGet(ctx, "key-1")
	if err != nil {
		t.Fatalf("ReserveOrGet() error = %v", err)
	}
	if !found {
		t.Fatal("expected receipt to be found")
	}
	if receipt.CorrelationID != "corr-1" {
		t.Fatalf("correlationId = %s, want corr-1", receipt.CorrelationID)
	}
}

func TestMemoryGuardFirstCommitWins(t *testing.T) {
	t.Parallel()

	guard := NewMemoryGuard(time.Hour)
	ctx := context.Background()

	if err := guard.Commit(ctx, "key-1", Receipt{CorrelationID: "first"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := guard.Commit(ctx, "key-1", Receipt{CorrelationID: "second"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	receipt, _, err := guard.ReserveOrGet(ctx, "key-1")
	if err != nil {
		t.Fatalf("ReserveOrGet() error = %v", err)
	}
	if receipt.CorrelationID != "first" {
		t.Fatalf("correlationId = %s, want first", receipt.CorrelationID)
	}
}

func TestMemoryGuardExpiry(t *testing.T) {
	t.Parallel()

	guard := NewMemoryGuard(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	guard.now = func() time.Time { return current }
	ctx := context.Background()

	if err := guard.Commit(ctx, "key-1", Receipt{CorrelationID: "corr-1"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	current = current.Add(2 * time.Minute)

	_, found, err := guard.ReserveOrGet(ctx, "key-1")
	if err != nil {
		t.Fatalf("ReserveOrGet() error = %v", err)
	}
	if found {
		t.Fatal("expected entry to have expired")
	}
}
