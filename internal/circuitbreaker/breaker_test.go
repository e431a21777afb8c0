package circuitbreaker

import (
	"testing"
	"time"
)

const endpoint = "https://example.myshopify.com/admin/api/2025-01/graphql.json"

func TestAllow_UnknownKey_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb := New(3, 5*time.Second)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen, got nil")
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
}

func TestRecordSuccess_ResetsToClosed(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(endpoint)
	cb.RecordSuccess(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen after probe failure re-open")
	}
}

func TestIndependentKeys(t *testing.T) {
	cb := New(2, 5*time.Second)
	other := "https://api.sendgrid.com/v3/mail/send"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected shopify endpoint open")
	}
	if err := cb.Allow(other); err != nil {
		t.Fatalf("expected sendgrid endpoint allowed, got %v", err)
	}
}
