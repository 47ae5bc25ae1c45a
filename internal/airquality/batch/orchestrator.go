package batch

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/ward-air-quality/internal/airquality"
	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
	"github.com/i474232898/ward-air-quality/internal/observability"
)

const (
	DefaultChunkSize = 5
	DefaultDelay     = 100 * time.Millisecond
)

// Lookuper fetches the upstream reading for one point.
type Lookuper interface {
	Lookup(ctx context.Context, lat, lon float64) (upstream.Response, error)
}

// Orchestrator fetches readings for many wards in fixed-size chunks. Lookups
// within a chunk run concurrently; chunks are separated by a fixed delay.
type Orchestrator struct {
	client    Lookuper
	chunkSize int
	delay     time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithChunkSize sets how many lookups run at once. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithDelay sets the pause between chunks. Negative values are ignored.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithClock replaces the clock used for the inter-chunk pause.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func New(client Lookuper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		chunkSize: DefaultChunkSize,
		delay:     DefaultDelay,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchWards returns mapped updates keyed by ward_unique for every location
// whose lookup succeeded. Failed lookups are left out. If ctx is cancelled no
// further chunks are started and the updates collected so far are returned.
func (o *Orchestrator) FetchWards(ctx context.Context, locations []airquality.WardLocation) map[string]airquality.WardUpdate {
	updates := make(map[string]airquality.WardUpdate, len(locations))

	for start := 0; start < len(locations); start += o.chunkSize {
		if start > 0 && !o.pause(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := min(start+o.chunkSize, len(locations))
		for _, u := range o.fetchChunk(ctx, locations[start:end]) {
			updates[u.WardUnique] = u
		}
		o.metrics.IncBatchChunk()
	}
	return updates
}

func (o *Orchestrator) fetchChunk(ctx context.Context, chunk []airquality.WardLocation) []airquality.WardUpdate {
	results := make([]*airquality.WardUpdate, len(chunk))

	var g errgroup.Group
	for i, loc := range chunk {
		g.Go(func() error {
			resp, err := o.client.Lookup(ctx, loc.Lat, loc.Lon)
			if err != nil {
				// The client already logged it; an absent entry is the signal.
				return nil
			}
			u := airquality.UpdateFor(loc.WardUnique, resp)
			results[i] = &u
			return nil
		})
	}
	_ = g.Wait()

	out := make([]airquality.WardUpdate, 0, len(chunk))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := o.clock.NewTimer(o.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
