// Package stats maintains derived per-client statistics: rollups, daily
// trends, and ranked top-query reports. Everything here is re-derivable from
// the citation set; caches are optimizations, never sources of truth.
package stats

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/store"
)

// Aggregator computes and incrementally maintains per-client rollups.
//
// The cache keeps only the time-independent aggregates (totals, position
// sums, per-platform and per-sentiment counts). The calendar-month counter
// depends on the caller's clock at read time, so it is computed against the
// store on every read and never cached.
type Aggregator struct {
	store store.Store

	mu      sync.Mutex
	clients map[int64]*clientAgg
}

// clientAgg holds one client's cached fold state. Its mutex serializes rollup
// updates for that client; different clients proceed independently.
type clientAgg struct {
	mu              sync.Mutex
	loaded          bool
	total           int
	positionSum     int
	positionCount   int
	platformCounts  map[string]int
	sentimentCounts map[models.Sentiment]int
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{
		store:   st,
		clients: make(map[int64]*clientAgg),
	}
}

func (a *Aggregator) clientState(clientID int64) *clientAgg {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.clients[clientID]
	if !ok {
		agg = &clientAgg{
			platformCounts:  make(map[string]int),
			sentimentCounts: make(map[models.Sentiment]int),
		}
		a.clients[clientID] = agg
	}
	return agg
}

// Rollup returns the client's summary statistics as of now. The fold state is
// loaded from the store on first use and maintained incrementally afterwards;
// a store read error surfaces to the caller rather than producing zeroed data.
func (a *Aggregator) Rollup(ctx context.Context, clientID int64, now time.Time) (*models.ClientRollup, error) {
	agg := a.clientState(clientID)

	agg.mu.Lock()
	if !agg.loaded {
		citations, err := a.store.ListCitationsByClient(ctx, clientID)
		if err != nil {
			agg.mu.Unlock()
			return nil, fmt.Errorf("load citations: %w", err)
		}
		for i := range citations {
			agg.add(&citations[i])
		}
		agg.loaded = true
	}
	rollup := agg.snapshot(clientID)
	agg.mu.Unlock()

	monthCount, err := a.store.CountCitationsByClientSince(ctx, clientID, monthStart(now))
	if err != nil {
		return nil, fmt.Errorf("count month citations: %w", err)
	}
	rollup.CitationsThisMonth = monthCount

	return rollup, nil
}

// Apply folds one newly recorded citation into the client's cached state.
// The result is identical to recomputing the full fold: a client whose state
// was never loaded picks the citation up on its next full load instead.
func (a *Aggregator) Apply(c *models.Citation) {
	agg := a.clientState(c.ClientID)
	agg.mu.Lock()
	defer agg.mu.Unlock()
	if !agg.loaded {
		return
	}
	agg.add(c)
}

// Invalidate drops a client's cached fold state, forcing a full recompute on
// the next read.
func (a *Aggregator) Invalidate(clientID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, clientID)
}

func (g *clientAgg) add(c *models.Citation) {
	g.total++
	if c.Position != nil {
		g.positionSum += *c.Position
		g.positionCount++
	}
	g.platformCounts[c.Platform]++
	if c.Sentiment != nil {
		g.sentimentCounts[*c.Sentiment]++
	}
}

func (g *clientAgg) snapshot(clientID int64) *models.ClientRollup {
	rollup := &models.ClientRollup{
		ClientID:       clientID,
		TotalCitations: g.total,
		SentimentBreakdown: map[models.Sentiment]int{
			models.SentimentPositive: g.sentimentCounts[models.SentimentPositive],
			models.SentimentNeutral:  g.sentimentCounts[models.SentimentNeutral],
			models.SentimentNegative: g.sentimentCounts[models.SentimentNegative],
		},
	}

	if g.positionCount > 0 {
		rollup.AvgPosition = round1(float64(g.positionSum) / float64(g.positionCount))
	}

	// Highest count wins; ties break by platform name ascending.
	best := ""
	bestCount := 0
	for platform, count := range g.platformCounts {
		if count > bestCount || (count == bestCount && count > 0 && platform < best) {
			best = platform
			bestCount = count
		}
	}
	rollup.TopPlatform = best

	return rollup
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
