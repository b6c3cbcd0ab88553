package spacetraveling

import (
	"context"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	return ts
}

func linkUID(l *PostLink) string {
	if l == nil {
		return ""
	}
	return l.UID
}

func TestAdjacentResolver(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	r := NewAdjacentResolver(s)

	tests := []struct {
		name     string
		at       string
		previous string
		next     string
	}{
		{"middle post", "2021-02-01T00:00:00+0000", "primeiro", "terceiro"},
		{"oldest post", "2021-01-01T00:00:00+0000", "", "segundo"},
		{"newest post", "2021-03-01T00:00:00+0000", "segundo", ""},
		{"between posts", "2021-02-15T00:00:00+0000", "segundo", "terceiro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, err := r.Resolve(context.Background(), mustTime(t, tt.at))
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got := linkUID(adj.Previous); got != tt.previous {
				t.Errorf("previous = %q, want %q", got, tt.previous)
			}
			if got := linkUID(adj.Next); got != tt.next {
				t.Errorf("next = %q, want %q", got, tt.next)
			}
		})
	}
}

func TestAdjacentResolverCarriesTitle(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	adj, err := NewAdjacentResolver(s).Resolve(context.Background(), mustTime(t, "2021-02-01T00:00:00+0000"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if adj.Previous == nil || adj.Previous.Title != "Primeiro" {
		t.Errorf("previous = %+v", adj.Previous)
	}
	if adj.Next == nil || adj.Next.Path() != "/post/terceiro" {
		t.Errorf("next = %+v", adj.Next)
	}
}

func TestAdjacentResolverTies(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	seedStore(t, s, testPost("p2b", "segundo-bis", "Segundo bis", "2021-02-01T00:00:00+0000"))
	r := NewAdjacentResolver(s)
	ctx := context.Background()

	adj, err := r.Resolve(ctx, mustTime(t, "2021-02-01T00:00:00+0000"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if linkUID(adj.Previous) != "primeiro" || linkUID(adj.Next) != "terceiro" {
		t.Errorf("posts sharing the timestamp must not be neighbours: %+v", adj)
	}

	adj, err = r.Resolve(ctx, mustTime(t, "2021-03-01T00:00:00+0000"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := linkUID(adj.Previous); got != "segundo-bis" {
		t.Errorf("previous = %q, want the higher id segundo-bis", got)
	}

	adj, err = r.Resolve(ctx, mustTime(t, "2021-01-01T00:00:00+0000"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := linkUID(adj.Next); got != "segundo" {
		t.Errorf("next = %q, want the lower id segundo", got)
	}
}
