package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/vndr/vndr-music/internal/model"
)

func TestNextBalance(t *testing.T) {
	tests := []struct {
		name    string
		before  int64
		amount  int64
		want    int64
		wantErr bool
	}{
		{name: "deposit", before: 10, amount: 5, want: 15},
		{name: "withdrawal within balance", before: 15, amount: -10, want: 5},
		{name: "withdrawal to exactly zero", before: 10, amount: -10, want: 0},
		{name: "withdrawal below zero rejected", before: 15, amount: -20, wantErr: true},
		{name: "withdrawal from empty balance rejected", before: 0, amount: -1, wantErr: true},
		{name: "zero delta keeps balance", before: 7, amount: 0, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextBalance(tt.before, tt.amount)
			if tt.wantErr {
				if !errors.Is(err, ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("nextBalance error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("nextBalance(%d, %d) = %d, want %d", tt.before, tt.amount, got, tt.want)
			}
		})
	}
}

func TestBuildLedgerRecord_AuditInvariant(t *testing.T) {
	rec, err := buildLedgerRecord("u1", -10, model.TransactionServiceFee, "listing fee", 25)
	if err != nil {
		t.Fatalf("buildLedgerRecord error: %v", err)
	}

	if rec.ID == "" {
		t.Fatalf("record must have an id")
	}
	if rec.UserID != "u1" || rec.Type != model.TransactionServiceFee || rec.Details != "listing fee" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.BalanceAfter-rec.BalanceBefore != rec.Amount {
		t.Fatalf("audit invariant violated: before=%d after=%d amount=%d",
			rec.BalanceBefore, rec.BalanceAfter, rec.Amount)
	}
	if rec.BalanceBefore != 25 || rec.BalanceAfter != 15 {
		t.Fatalf("balances = (%d, %d), want (25, 15)", rec.BalanceBefore, rec.BalanceAfter)
	}
}

func TestBuildLedgerRecord_RejectsNegativeResult(t *testing.T) {
	rec, err := buildLedgerRecord("u1", -20, model.TransactionServiceFee, "fee", 15)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if rec != nil {
		t.Fatalf("no record must be produced for a rejected delta, got %+v", rec)
	}
}

func TestAlreadyClaimed(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if alreadyClaimed(nil, day) {
		t.Fatalf("nil claim date must mean not claimed")
	}

	sameDay := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !alreadyClaimed(&sameDay, day) {
		t.Fatalf("same calendar day must count as claimed")
	}

	// Дата из БД может приехать с ненулевым временем суток.
	sameDayLater := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	if !alreadyClaimed(&sameDayLater, day) {
		t.Fatalf("same day with a time-of-day component must count as claimed")
	}

	yesterday := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	if alreadyClaimed(&yesterday, day) {
		t.Fatalf("previous day must not count as claimed")
	}

	tomorrow := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if alreadyClaimed(&tomorrow, day) {
		t.Fatalf("different day must not count as claimed")
	}
}
