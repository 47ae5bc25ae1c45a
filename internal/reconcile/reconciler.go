package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/airquality"
	"github.com/i474232898/ward-air-quality/internal/observability"
)

const DefaultBatchSize = 20

var (
	ErrBaselineUnavailable = errors.New("baseline ward dataset unavailable")
	ErrClosed              = errors.New("reconciler closed")
	ErrEnhancementDisabled = errors.New("upstream enhancement not configured")
)

// Pass outcomes used for logs and metrics.
const (
	PassApplied   = "applied"
	PassEmpty     = "empty"
	PassSkipped   = "skipped"
	PassDiscarded = "discarded"
)

// WardSource provides the baseline dataset and the name lookup table.
type WardSource interface {
	LoadWards(ctx context.Context) ([]airquality.WardAQIData, error)
	LoadWardNames(ctx context.Context) (map[string]string, error)
}

// Fetcher returns upstream updates for the given wards. Missing keys mean the
// lookup failed.
type Fetcher interface {
	FetchWards(ctx context.Context, locations []airquality.WardLocation) map[string]airquality.WardUpdate
}

// HistoryRecorder receives every published reading.
type HistoryRecorder interface {
	RecordAll(readings []airquality.Reading)
}

// State is an immutable published view of the ward collection.
type State struct {
	Wards       []airquality.WardAQIData `json:"wards"`
	Loading     bool                     `json:"loading"`
	Error       string                   `json:"error,omitempty"`
	DataSource  airquality.DataSource    `json:"dataSource"`
	LastUpdated time.Time                `json:"lastUpdated"`
}

// EnhanceResult is the outcome of one enhancement pass. Err is set for
// non-fatal failures; the published state is never affected by them.
type EnhanceResult struct {
	PassID    string                `json:"passId"`
	Trigger   string                `json:"trigger"`
	Requested int                   `json:"requested"`
	Returned  int                   `json:"returned"`
	Applied   int                   `json:"applied"`
	Source    airquality.DataSource `json:"dataSource"`
	Err       error                 `json:"-"`
}

type Reconciler struct {
	source  WardSource
	fetcher Fetcher

	enhance   bool
	batchSize int
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
	history   HistoryRecorder

	mu    sync.RWMutex
	state State

	// passMu serializes enhancement passes.
	passMu sync.Mutex

	life   context.Context
	cancel context.CancelFunc
}

type Option func(*Reconciler)

func WithEnhancement(enabled bool) Option {
	return func(r *Reconciler) { r.enhance = enabled }
}

// WithBatchSize caps how many wards one pass sends upstream.
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithHistory(h HistoryRecorder) Option {
	return func(r *Reconciler) { r.history = h }
}

// New creates a Reconciler. fetcher may be nil, in which case the collection
// is served from the local dataset only.
func New(source WardSource, fetcher Fetcher, opts ...Option) *Reconciler {
	life, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		source:    source,
		fetcher:   fetcher,
		enhance:   true,
		batchSize: DefaultBatchSize,
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		state:     State{DataSource: airquality.SourceLocal},
		life:      life,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnhancementEnabled reports whether Load enhances the baseline and whether
// periodic refreshes make sense.
func (r *Reconciler) EnhancementEnabled() bool {
	return r.enhance && r.fetcher != nil
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.state
	s.Wards = slices.Clone(r.state.Wards)
	return s
}

// Ward returns the current record for one ward key.
func (r *Reconciler) Ward(wardUnique string) (airquality.WardAQIData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.state.Wards {
		if w.WardUnique == wardUnique {
			return w, true
		}
	}
	return airquality.WardAQIData{}, false
}

// Load performs the initial load: baseline, name overlay and, when enabled, an
// enhancement pass over the highest-AQI wards. Only a baseline failure is
// returned as an error.
func (r *Reconciler) Load(ctx context.Context) error {
	if r.life.Err() != nil {
		return ErrClosed
	}

	r.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
	defer r.update(func(s *State) { s.Loading = false })

	wards, err := r.source.LoadWards(ctx)
	if err != nil {
		r.metrics.IncBaselineFailure()
		r.logger.Error("failed to load baseline ward dataset", zap.Error(err))
		r.update(func(s *State) {
			s.Wards = nil
			s.Error = err.Error()
		})
		return fmt.Errorf("%w: %w", ErrBaselineUnavailable, err)
	}

	names, err := r.source.LoadWardNames(ctx)
	if err != nil {
		r.logger.Warn("ward names unavailable, continuing without them", zap.Error(err))
	} else {
		wards = airquality.OverlayNames(wards, names)
	}

	now := r.clock.Now().UTC()
	published := r.publish(func(s *State) {
		s.Wards = wards
		s.DataSource = airquality.SourceLocal
		s.LastUpdated = now
		s.Error = ""
	})
	if !published {
		return ErrClosed
	}
	r.metrics.SetWardsLoaded(len(wards))
	r.record(wards, nil, airquality.SourceLocal, now)
	r.logger.Info("baseline published", zap.Int("wards", len(wards)))

	if r.EnhancementEnabled() {
		r.runPass(ctx, "initial", airquality.PrioritizeByAQI(wards, r.batchSize))
	}
	return nil
}

// RefreshFromUpstream re-enhances the first BatchSize wards of the current
// collection. An empty collection is a no-op.
func (r *Reconciler) RefreshFromUpstream(ctx context.Context) EnhanceResult {
	if r.fetcher == nil {
		return EnhanceResult{Trigger: "refresh", Source: r.Snapshot().DataSource, Err: ErrEnhancementDisabled}
	}

	r.mu.RLock()
	n := min(len(r.state.Wards), r.batchSize)
	targets := slices.Clone(r.state.Wards[:n])
	r.mu.RUnlock()

	return r.runPass(ctx, "refresh", targets)
}

func (r *Reconciler) runPass(ctx context.Context, trigger string, targets []airquality.WardAQIData) EnhanceResult {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	result := EnhanceResult{
		PassID:    uuid.NewString(),
		Trigger:   trigger,
		Requested: len(targets),
	}
	log := r.logger.With(zap.String("pass", result.PassID), zap.String("trigger", trigger))

	if r.life.Err() != nil {
		result.Err = ErrClosed
		result.Source = r.Snapshot().DataSource
		return result
	}
	if len(targets) == 0 {
		result.Source = r.Snapshot().DataSource
		r.metrics.ObservePass(PassSkipped, 0, time.Time{})
		return result
	}

	passCtx, stop := context.WithCancel(ctx)
	defer stop()
	unlink := context.AfterFunc(r.life, stop)
	defer unlink()

	updates := r.fetcher.FetchWards(passCtx, airquality.Locations(targets))
	result.Returned = len(updates)

	if r.life.Err() != nil {
		log.Info("discarding enhancement results after close", zap.Int("returned", result.Returned))
		r.metrics.ObservePass(PassDiscarded, 0, time.Time{})
		result.Err = ErrClosed
		result.Source = r.Snapshot().DataSource
		return result
	}

	if result.Returned == 0 {
		log.Warn("no upstream readings returned, keeping current data", zap.Int("requested", result.Requested))
		r.metrics.ObservePass(PassEmpty, 0, time.Time{})
		result.Source = r.Snapshot().DataSource
		return result
	}

	source := airquality.SourceMixed
	if result.Returned == result.Requested {
		source = airquality.SourceGoogle
	}

	now := r.clock.Now().UTC()
	var merged []airquality.WardAQIData
	published := r.publish(func(s *State) {
		merged, result.Applied = airquality.Merge(s.Wards, updates)
		s.Wards = merged
		s.DataSource = source
		s.LastUpdated = now
	})
	if !published {
		r.metrics.ObservePass(PassDiscarded, 0, time.Time{})
		result.Err = ErrClosed
		result.Source = r.Snapshot().DataSource
		return result
	}
	result.Source = source

	r.record(merged, updates, airquality.SourceGoogle, now)
	r.metrics.ObservePass(PassApplied, result.Applied, now)
	log.Info("enhancement applied",
		zap.Int("requested", result.Requested),
		zap.Int("returned", result.Returned),
		zap.Int("applied", result.Applied),
		zap.String("data_source", string(source)),
	)
	return result
}

// Close cancels in-flight passes. Results that complete afterwards are not
// published.
func (r *Reconciler) Close() {
	r.cancel()
}

// update changes bookkeeping fields regardless of Close.
func (r *Reconciler) update(fn func(*State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
}

// publish applies fn unless the reconciler has been closed.
func (r *Reconciler) publish(fn func(*State)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.life.Err() != nil {
		return false
	}
	fn(&r.state)
	return true
}

// record sends readings to the history. When only is non-nil, just the wards
// it names (with an AQI) are recorded.
func (r *Reconciler) record(wards []airquality.WardAQIData, only map[string]airquality.WardUpdate, source airquality.DataSource, now time.Time) {
	if r.history == nil {
		return
	}
	readings := make([]airquality.Reading, 0, len(wards))
	for _, w := range wards {
		if only != nil {
			if u, ok := only[w.WardUnique]; !ok || u.AQI == nil {
				continue
			}
		}
		readings = append(readings, airquality.ReadingOf(w, source, now))
	}
	r.history.RecordAll(readings)
}
