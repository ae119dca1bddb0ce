// Package leaderboard keeps the best score per client address and enriches
// new addresses with a coarse geolocation.
package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/genautapi/internal/observe"
)

// DefaultLimit is the number of entries Top returns for a non-positive limit.
const DefaultLimit = 10

// DefaultName is used for entries submitted without a display name.
const DefaultName = "Anonymous"

// Entry is one leaderboard row.
type Entry struct {
	IP      string `json:"ip"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Country string `json:"country"`
	City    string `json:"city"`
	Flag    string `json:"flag"`

	seq int
}

// Board is the in-memory leaderboard. A single mutex guards every entry, so
// concurrent turns never interleave updates.
type Board struct {
	mu      sync.Mutex
	entries map[string]*Entry
	nextSeq int

	locator Locator
	metrics *observe.Metrics
}

// Option configures a [Board].
type Option func(*Board)

// WithMetrics records the entry count to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// New creates an empty Board. A nil locator marks every address Unknown.
func New(locator Locator, opts ...Option) *Board {
	b := &Board{entries: make(map[string]*Entry), locator: locator}
	for _, opt := range opts {
		opt(b)
	}
	if b.locator == nil {
		b.locator = staticLocator{}
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Update submits a score for ip. The first submission geolocates the address
// and inserts it; later ones keep the maximum score, and the name changes
// only together with an improved score. The stored entry is returned.
func (b *Board) Update(ctx context.Context, ip string, score int, name string) Entry {
	if name == "" {
		name = DefaultName
	}

	b.mu.Lock()
	if e, ok := b.entries[ip]; ok {
		defer b.mu.Unlock()
		return raise(e, score, name)
	}
	b.mu.Unlock()

	// Lookups are slow and stay outside the lock.
	loc := b.locator.Locate(ctx, ip)

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[ip]; ok {
		return raise(e, score, name)
	}
	b.nextSeq++
	e := &Entry{
		IP:      ip,
		Name:    name,
		Score:   score,
		Country: loc.Country,
		City:    loc.City,
		Flag:    loc.CountryCode,
		seq:     b.nextSeq,
	}
	b.entries[ip] = e
	b.metrics.LeaderboardEntries.Add(ctx, 1)
	return *e
}

// raise must be called with b.mu held.
func raise(e *Entry, score int, name string) Entry {
	if score > e.Score {
		e.Score = score
		e.Name = name
	}
	return *e
}

// Top returns up to limit entries by descending score. Ties keep the order in
// which addresses first appeared.
func (b *Board) Top(limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}

	b.mu.Lock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(x, y Entry) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.seq, y.seq)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of addresses on the board.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
