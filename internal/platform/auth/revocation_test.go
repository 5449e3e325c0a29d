package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryRevocationStore(t *testing.T) {
	s := NewMemoryRevocationStore(time.Hour)
	defer s.Close()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)

	if revoked, _ := s.IsRevoked(ctx, "bruce", at.Add(-time.Minute)); revoked {
		t.Fatal("unknown account reported as revoked")
	}

	_ = s.RevokeUser(ctx, "bruce", at)

	tests := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{"issued before", at.Add(-time.Minute), true},
		{"issued within the revocation second", at.Truncate(time.Second), true},
		{"issued after", at.Add(time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IsRevoked(ctx, "bruce", tt.issuedAt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsRevoked() = %v, want %v", got, tt.want)
			}
		})
	}

	if revoked, _ := s.IsRevoked(ctx, "dick", at.Add(-time.Minute)); revoked {
		t.Error("revocation leaked to another account")
	}
}

func TestMemoryRevocationStore_KeepsLatest(t *testing.T) {
	s := NewMemoryRevocationStore(time.Hour)
	defer s.Close()
	ctx := context.Background()
	late := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_ = s.RevokeUser(ctx, "bruce", late)
	_ = s.RevokeUser(ctx, "bruce", late.Add(-time.Hour))

	if revoked, _ := s.IsRevoked(ctx, "bruce", late.Add(-time.Minute)); !revoked {
		t.Error("older revocation overwrote the newer one")
	}
}

func TestMemoryRevocationStore_Cleanup(t *testing.T) {
	s := NewMemoryRevocationStore(10 * time.Minute)
	defer s.Close()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.RevokeUser(context.Background(), "old", now.Add(-time.Hour))
	_ = s.RevokeUser(context.Background(), "recent", now.Add(-time.Minute))
	s.cleanup()

	if s.Count() != 1 {
		t.Fatalf("expected 1 entry after cleanup, got %d", s.Count())
	}
}

func TestMemoryRevocationStore_Concurrent(t *testing.T) {
	s := NewMemoryRevocationStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.RevokeUser(ctx, "bruce", time.Now())
		}()
		go func() {
			defer wg.Done()
			_, _ = s.IsRevoked(ctx, "bruce", time.Now())
		}()
	}
	wg.Wait()
}

func TestMemoryRevocationStore_CloseTwice(t *testing.T) {
	s := NewMemoryRevocationStore(time.Hour)
	s.Close()
	s.Close()
}
