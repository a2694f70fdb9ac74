package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/metrics"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stats"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/store"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stream"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/upstream"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/view"
)

var (
	// ErrNoScan is returned before any batch has been ingested
	ErrNoScan = errors.New("no scan available")
	// ErrSymbolNotFound is returned when the latest scan has no rejection for a symbol
	ErrSymbolNotFound = errors.New("symbol not rejected in latest scan")
	// ErrNoUpstream is returned by Refresh when no fetcher is configured
	ErrNoUpstream = errors.New("upstream not configured")
)

// Fetcher retrieves scan batches from the analysis pipeline
type Fetcher interface {
	FetchBatch(ctx context.Context, p upstream.Params) (signal.Batch, error)
}

// Publisher pushes envelopes to live subscribers
type Publisher interface {
	Publish(env *stream.Envelope) error
}

// Snapshot is a batch together with its derived statistics
type Snapshot struct {
	Batch signal.Batch         `json:"batch"`
	Stats stats.ScanStatistics `json:"stats"`
}

// Options wires the service's collaborators. Only Repo is required.
type Options struct {
	Engine    *quality.Engine
	Repo      *store.Repo
	Fetcher   Fetcher
	Params    upstream.Params
	Metrics   *metrics.Registry
	Publisher Publisher
	Now       func() time.Time
}

// Service owns the latest scan and serves every analytics view over it
type Service struct {
	repo      *store.Repo
	fetcher   Fetcher
	params    upstream.Params
	metrics   *metrics.Registry
	publisher Publisher
	now       func() time.Time

	mu         sync.RWMutex
	engine     *quality.Engine
	aggregator *stats.Aggregator
	pipeline   *view.Pipeline
	explainer  *explain.Explainer
	latest     *Snapshot
}

// NewService builds a service from opts
func NewService(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Repo == nil {
		opts.Repo = store.NewRepo(store.NewMemory(), "", 0)
	}
	s := &Service{
		repo:      opts.Repo,
		fetcher:   opts.Fetcher,
		params:    opts.Params,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		now:       opts.Now,
	}
	s.setEngine(opts.Engine)
	return s
}

// Reconfigure swaps the engine thresholds and recomputes the cached stats
func (s *Service) Reconfigure(cfg quality.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.setEngine(quality.NewEngine(cfg))
	if s.latest != nil {
		b := s.latest.Batch
		s.latest = &Snapshot{Batch: b, Stats: s.aggregator.Aggregate(b.Signals, b.Rejections, b.Metadata)}
	}
	s.mu.Unlock()

	log.Info().Str("engine", cfg.Describe()).Msg("Quality engine reconfigured")
	return nil
}

// setEngine must be called with mu held or before the service is shared
func (s *Service) setEngine(engine *quality.Engine) {
	if engine == nil {
		engine = quality.NewDefaultEngine()
	}
	s.engine = engine
	s.aggregator = stats.NewAggregator(engine)
	s.pipeline = view.NewPipeline(engine)
	s.explainer = explain.NewExplainer(engine)
}

// Engine returns the active quality engine
func (s *Service) Engine() *quality.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Ingest stores batch as the latest scan, computes its statistics and
// notifies subscribers. A missing scan id or timestamp is filled in.
func (s *Service) Ingest(ctx context.Context, batch signal.Batch) (Snapshot, error) {
	if batch.Metadata.ScanID == "" {
		batch.Metadata.ScanID = uuid.New().String()
	}
	if batch.Metadata.ScannedAt.IsZero() {
		batch.Metadata.ScannedAt = s.now().UTC()
	}

	timer := s.startStep("store")
	if err := s.repo.SaveBatch(ctx, batch); err != nil {
		timer.stop("error")
		return Snapshot{}, fmt.Errorf("failed to save scan %s: %w", batch.Metadata.ScanID, err)
	}
	timer.stop("success")

	timer = s.startStep("aggregate")
	s.mu.Lock()
	snap := Snapshot{Batch: batch, Stats: s.aggregator.Aggregate(batch.Signals, batch.Rejections, batch.Metadata)}
	s.latest = &snap
	s.mu.Unlock()
	timer.stop("success")

	if s.metrics != nil {
		s.metrics.Observe(snap.Stats)
	}
	s.publish(snap)

	log.Info().
		Str("scan_id", batch.Metadata.ScanID).
		Str("mode", batch.Metadata.Mode).
		Int("signals", snap.Stats.TotalSignals).
		Int("rejected", snap.Stats.RejectedCount).
		Int("dropped", batch.Dropped).
		Str("grade", snap.Stats.QualityGrade).
		Msg("Scan ingested")

	return snap, nil
}

// Refresh fetches a new batch upstream and ingests it
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	if s.fetcher == nil {
		return Snapshot{}, ErrNoUpstream
	}

	timer := s.startStep("fetch")
	batch, err := s.fetcher.FetchBatch(ctx, s.params)
	if err != nil {
		timer.stop("error")
		if s.metrics != nil {
			s.metrics.RecordUpstreamError(errorKind(err))
		}
		return Snapshot{}, fmt.Errorf("failed to fetch scan: %w", err)
	}
	timer.stop("success")

	if batch.Metadata.Mode == "" {
		batch.Metadata.Mode = s.params.Mode
	}
	return s.Ingest(ctx, batch)
}

// Poll calls Refresh every interval until ctx is cancelled. Failures are
// logged and the previous scan stays current.
func (s *Service) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Polling upstream for scans")
	for {
		if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Scheduled scan refresh failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Latest returns the current snapshot, loading it from the store after a restart
func (s *Service) Latest(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	if s.latest != nil {
		snap := *s.latest
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	batch, err := s.repo.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Snapshot{}, ErrNoScan
	}
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		s.latest = &Snapshot{Batch: batch, Stats: s.aggregator.Aggregate(batch.Signals, batch.Rejections, batch.Metadata)}
	}
	return *s.latest, nil
}

// Stats returns the statistics of the latest scan
func (s *Service) Stats(ctx context.Context) (stats.ScanStatistics, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return stats.ScanStatistics{}, err
	}
	return snap.Stats, nil
}

// Signals returns the latest scan's signals filtered and sorted by state,
// together with the snapshot they were derived from
func (s *Service) Signals(ctx context.Context, state view.State) (Snapshot, []quality.Annotated, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	return snap, p.ApplyAnnotated(snap.Batch.Signals, state.Filters, state.Sort), nil
}

// Rejections explains every rejection in the latest scan
func (s *Service) Rejections(ctx context.Context) (Snapshot, []explain.Breakdown, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, s.currentExplainer().ExplainAll(snap.Batch.Rejections), nil
}

// Explain returns the breakdowns of every rejection recorded for symbol
func (s *Service) Explain(ctx context.Context, symbol string) (Snapshot, []explain.Breakdown, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}

	e := s.currentExplainer()
	var out []explain.Breakdown
	for _, rec := range snap.Batch.Rejections {
		if rec.Symbol == symbol {
			out = append(out, e.Explain(rec))
		}
	}
	if len(out) == 0 {
		return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return snap, out, nil
}

// SaveView persists an operator's view state
func (s *Service) SaveView(ctx context.Context, id string, state view.State) (view.State, error) {
	state = state.Normalized()
	if err := s.repo.SaveView(ctx, id, state); err != nil {
		return view.State{}, err
	}
	return state, nil
}

// ToggleSort applies a column click to a saved view: the active column flips
// direction, any other column becomes active descending
func (s *Service) ToggleSort(ctx context.Context, id string, field view.SortField) (view.State, error) {
	state, err := s.repo.View(ctx, id)
	if err != nil {
		return view.State{}, err
	}
	state.Sort = state.Sort.Toggle(field)
	return s.SaveView(ctx, id, state)
}

// View loads an operator's view state
func (s *Service) View(ctx context.Context, id string) (view.State, error) {
	return s.repo.View(ctx, id)
}

// Ping checks the snapshot store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) currentExplainer() *explain.Explainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.explainer
}

func (s *Service) publish(snap Snapshot) {
	if s.publisher == nil {
		return
	}
	id := snap.Batch.Metadata.ScanID
	now := s.now()

	events := []struct {
		kind    string
		payload interface{}
	}{
		{stream.EventScan, snap.Batch.Metadata},
		{stream.EventStats, snap.Stats},
		{stream.EventRejections, s.currentExplainer().ExplainAll(snap.Batch.Rejections)},
	}
	for _, ev := range events {
		env, err := stream.NewEnvelope(ev.kind, id, ev.payload, now)
		if err != nil {
			log.Error().Err(err).Str("type", ev.kind).Msg("Failed to build stream envelope")
			continue
		}
		if err := s.publisher.Publish(env); err != nil {
			log.Error().Err(err).Str("type", ev.kind).Msg("Failed to publish stream envelope")
		}
	}
}

type stepTimer struct {
	t *metrics.StepTimer
}

func (s *Service) startStep(step string) stepTimer {
	if s.metrics == nil {
		return stepTimer{}
	}
	return stepTimer{t: s.metrics.StartStepTimer(step)}
}

func (st stepTimer) stop(result string) {
	if st.t != nil {
		st.t.Stop(result)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, upstream.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, upstream.ErrBreakerOpen):
		return "breaker_open"
	default:
		return "request"
	}
}
