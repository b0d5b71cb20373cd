package cache

import (
	"testing"
	"time"
)

func TestEntry_IsFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		storedAt time.Time
		ttl      time.Duration
		want     bool
	}{
		{
			name:     "just stored",
			storedAt: now,
			ttl:      100 * time.Millisecond,
			want:     true,
		},
		{
			name:     "exactly at ttl is still fresh",
			storedAt: now.Add(-100 * time.Millisecond),
			ttl:      100 * time.Millisecond,
			want:     true,
		},
		{
			name:     "one millisecond past ttl",
			storedAt: now.Add(-101 * time.Millisecond),
			ttl:      100 * time.Millisecond,
			want:     false,
		},
		{
			name:     "stored in the future counts as age zero",
			storedAt: now.Add(time.Second),
			ttl:      0,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{StoredAt: tt.storedAt, TTL: tt.ttl}
			if got := entry.IsFresh(now); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Remaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		storedAt time.Time
		ttl      time.Duration
		want     time.Duration
	}{
		{
			name:     "one minute left",
			storedAt: now.Add(-4 * time.Minute),
			ttl:      5 * time.Minute,
			want:     time.Minute,
		},
		{
			name:     "already stale",
			storedAt: now.Add(-10 * time.Minute),
			ttl:      5 * time.Minute,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{StoredAt: tt.storedAt, TTL: tt.ttl}
			if got := entry.Remaining(now); got != tt.want {
				t.Errorf("Remaining() = %v, want %v", got, tt.want)
			}
		})
	}
}
