package fetch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portfolio-cli/internal/cache"
	"github.com/sells-group/portfolio-cli/internal/model"
)

// Service ties the engine together: cache-first reads, the two-layer fetch
// lock, parallel provider execution, and write-back of merged results.
type Service struct {
	store     cache.Store
	builder   *Builder
	exec      *Executor
	locks     *LockRegistry
	lockGrace time.Duration
	now       func() time.Time
}

// NewService creates the fetch service.
func NewService(store cache.Store, builder *Builder, exec *Executor, lockGrace time.Duration) *Service {
	if exec == nil {
		exec = NewExecutor()
	}
	if lockGrace <= 0 {
		lockGrace = cache.DefaultLockGrace
	}
	return &Service{
		store:     store,
		builder:   builder,
		exec:      exec,
		locks:     NewLockRegistry(),
		lockGrace: lockGrace,
		now:       time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// FetchCompanyData satisfies a data request for one company. Fresh cached
// data is served directly unless forceRefresh is set. When another fetch for
// the same company is already in flight (in this process or any other), the
// current cache contents come back as-is rather than waiting.
func (s *Service) FetchCompanyData(ctx context.Context, company model.Company, types []model.DataType, forceRefresh bool) (*model.FetchResult, error) {
	start := s.now()
	if len(types) == 0 {
		types = append([]model.DataType(nil), model.AllDataTypes...)
	}
	types = model.SortTypes(types)

	rec, err := s.store.Get(ctx, company.ID)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read cache")
	}

	if !forceRefresh && !rec.IsStale(types, start) {
		zap.L().Debug("fetch: cache hit",
			zap.String("company", company.Label()),
			zap.Int("data_types", len(types)),
		)
		return s.result(rec.Normalized(types), model.SourceCache, types, "", start), nil
	}

	// Layer one: in-process guard.
	if !s.locks.TryAcquire(company.ID) {
		zap.L().Info("fetch: local fetch already in flight, serving cache",
			zap.String("company", company.Label()),
		)
		return s.fallback(company, rec, types, start), nil
	}
	defer s.locks.Release(company.ID)

	// Layer two: persisted lock shared across processes.
	locked, err := s.store.TryLock(ctx, company.ID, s.lockGrace)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: acquire lock")
	}
	if !locked {
		zap.L().Info("fetch: persisted lock held elsewhere, serving cache",
			zap.String("company", company.Label()),
		)
		return s.fallback(company, rec, types, start), nil
	}
	defer func() {
		// Release even when the caller's context is already gone.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := s.store.Unlock(unlockCtx, company.ID); uerr != nil {
			zap.L().Error("fetch: release lock failed",
				zap.String("company", company.Label()),
				zap.Error(uerr),
			)
		}
	}()

	cycleID := uuid.NewString()
	tasks := s.builder.Build(company, types)
	zap.L().Info("fetch: cycle starting",
		zap.String("company", company.Label()),
		zap.String("cycle_id", cycleID),
		zap.Int("tasks", len(tasks)),
		zap.Bool("force_refresh", forceRefresh),
	)

	results := s.exec.Execute(ctx, tasks, company.Label())
	merged := Merge(company, types, results, s.now())

	stored, err := s.store.Upsert(ctx, company.ID, merged)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: write cache")
	}

	zap.L().Info("fetch: cycle completed",
		zap.String("company", company.Label()),
		zap.String("cycle_id", cycleID),
		zap.Float64("confidence", merged.Confidence),
		zap.Duration("elapsed", s.now().Sub(start)),
	)

	// Serve the merged view of this cycle, carrying the aggregate confidence
	// the store computed over everything cached for the company.
	merged.Confidence = stored.Confidence
	return s.result(merged, model.SourceLive, types, cycleID, start), nil
}

// fallback builds the lock-contention response: whatever the cache holds,
// stale or not, or an explicitly empty record when nothing is cached yet.
func (s *Service) fallback(company model.Company, rec *cache.Record, types []model.DataType, start time.Time) *model.FetchResult {
	if rec != nil {
		return s.result(rec.Normalized(types), model.SourceLockFallback, types, "", start)
	}

	sections := make(map[model.DataType]model.Section, len(types))
	for _, dt := range types {
		sections[dt] = model.Section{Error: "fetch in progress"}
	}
	empty := &model.NormalizedRecord{
		CompanyID:    company.ID,
		CompanyName:  company.Name,
		Sections:     sections,
		DataCategory: model.Classify(types),
		Confidence:   0,
		FetchedAt:    start,
	}
	return s.result(empty, model.SourceLockFallback, types, "", start)
}

func (s *Service) result(data *model.NormalizedRecord, source string, types []model.DataType, cycleID string, start time.Time) *model.FetchResult {
	return &model.FetchResult{
		Data: data,
		Meta: model.FetchMetadata{
			Source:        source,
			DataTypes:     types,
			Confidence:    data.Confidence,
			ExecutionTime: s.now().Sub(start).Milliseconds(),
			CycleID:       cycleID,
		},
	}
}
