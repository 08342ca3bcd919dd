package presets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/pkg/registry"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Source fetches raw template records for a tool and locale.
type Source interface {
	Fetch(ctx context.Context, tool ToolType, locale string) ([]RawRecord, error)
}

// Snapshot is one published index for a (tool, locale) pair.
type Snapshot struct {
	Tool     ToolType
	Locale   string
	Index    *CombinationIndex
	Seq      uint64
	LoadedAt time.Time
	Skipped  int
}

func emptySnapshot(tool ToolType, locale string) *Snapshot {
	return &Snapshot{Tool: tool, Locale: locale, Index: Build(nil)}
}

type slot struct {
	current atomic.Pointer[Snapshot]
	nextSeq atomic.Uint64
}

// Catalog holds the latest snapshot for every loaded (tool, locale) pair.
// Readers load an atomic pointer; loads for the same pair are coalesced.
type Catalog struct {
	source      Source
	tools       *registry.ToolRegistry
	logger      logger.Logger
	loadTimeout time.Duration

	slots sync.Map // slotKey -> *slot
	group singleflight.Group
}

// CatalogOption customizes a Catalog.
type CatalogOption func(*Catalog)

// WithLoadTimeout bounds every template store fetch.
func WithLoadTimeout(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

func NewCatalog(source Source, tools *registry.ToolRegistry, log logger.Logger, opts ...CatalogOption) *Catalog {
	if tools == nil {
		tools = registry.Default()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	c := &Catalog{
		source:      source,
		tools:       tools,
		logger:      log,
		loadTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func slotKey(tool ToolType, locale string) string {
	return string(tool) + keySeparator + locale
}

func (c *Catalog) slot(tool ToolType, locale string) *slot {
	key := slotKey(tool, locale)
	if s, ok := c.slots.Load(key); ok {
		return s.(*slot)
	}
	s, _ := c.slots.LoadOrStore(key, &slot{})
	return s.(*slot)
}

// canonical maps a tool type onto the registry's spelling so that every slot
// is keyed the same way regardless of caller casing.
func (c *Catalog) canonical(tool ToolType) (registry.ToolProfile, ToolType, bool) {
	profile, ok := c.tools.Profile(string(tool))
	if !ok {
		return registry.ToolProfile{}, tool, false
	}
	return profile, ToolType(profile.Type), true
}

// Snapshot returns the published snapshot or nil if the pair was never loaded.
func (c *Catalog) Snapshot(tool ToolType, locale string) *Snapshot {
	_, tool, _ = c.canonical(tool)
	s, ok := c.slots.Load(slotKey(tool, NormalizeLocale(locale)))
	if !ok {
		return nil
	}
	return s.(*slot).current.Load()
}

// Get returns the published snapshot, loading it on a miss. Concurrent misses
// share one fetch. When the load fails the error is returned together with
// the previous snapshot, or an empty one, so callers can still resolve to
// noMatch.
func (c *Catalog) Get(ctx context.Context, tool ToolType, locale string) (*Snapshot, error) {
	locale = NormalizeLocale(locale)
	if snap := c.Snapshot(tool, locale); snap != nil {
		return snap, nil
	}
	return c.fetch(ctx, tool, locale, false)
}

// Load fetches and publishes a fresh snapshot, replacing the previous one.
// It never joins a fetch that was already in flight when it was called, so
// data changed before the call (for example after a cache invalidation) is
// always seen. Loads started while it runs share its fetch.
func (c *Catalog) Load(ctx context.Context, tool ToolType, locale string) (*Snapshot, error) {
	return c.fetch(ctx, tool, locale, true)
}

func (c *Catalog) fetch(ctx context.Context, tool ToolType, locale string, fresh bool) (*Snapshot, error) {
	locale = NormalizeLocale(locale)
	profile, tool, ok := c.canonical(tool)
	if !ok {
		return emptySnapshot(tool, locale), apperrors.NewUnknownToolTypeError(string(tool))
	}

	key := slotKey(tool, locale)
	if fresh {
		c.group.Forget(key)
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.load(ctx, profile, locale)
	})
	if err != nil {
		if prev := c.Snapshot(tool, locale); prev != nil {
			return prev, err
		}
		return emptySnapshot(tool, locale), err
	}
	return v.(*Snapshot), nil
}

func (c *Catalog) load(ctx context.Context, profile registry.ToolProfile, locale string) (*Snapshot, error) {
	tool := ToolType(profile.Type)
	s := c.slot(tool, locale)
	seq := s.nextSeq.Add(1)

	// Coalesced callers share this fetch, so one caller's cancellation must
	// not fail the others.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	raws, err := c.source.Fetch(fetchCtx, tool, locale)
	if err != nil {
		metrics.IndexBuilds.WithLabelValues(string(tool), "failed").Inc()
		c.logger.Warn("template load failed", map[string]interface{}{
			"toolType": string(tool),
			"locale":   locale,
			"seq":      seq,
			"error":    err,
		})
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTemplateLoadTimeoutError(string(tool), locale)
		}
		return nil, apperrors.NewTemplateLoadFailedError(string(tool), locale, err)
	}

	records, skipped := NewExtractor(profile, c.logger).ExtractAll(raws)
	snap := &Snapshot{
		Tool:     tool,
		Locale:   locale,
		Index:    Build(records),
		Seq:      seq,
		LoadedAt: time.Now().UTC(),
		Skipped:  skipped,
	}

	published, committed := commit(s, snap)
	if !committed {
		metrics.IndexBuilds.WithLabelValues(string(tool), "stale").Inc()
		c.logger.Debug("stale template load dropped", map[string]interface{}{
			"toolType":     string(tool),
			"locale":       locale,
			"seq":          seq,
			"publishedSeq": published.Seq,
		})
		return published, nil
	}

	metrics.IndexBuilds.WithLabelValues(string(tool), "ok").Inc()
	metrics.IndexRecords.WithLabelValues(string(tool), locale).Set(float64(snap.Index.Len()))
	c.logger.Info("template index published", map[string]interface{}{
		"toolType": string(tool),
		"locale":   locale,
		"seq":      seq,
		"records":  snap.Index.Len(),
		"keys":     snap.Index.KeyCount(),
		"skipped":  skipped,
	})
	return snap, nil
}

// commit publishes snap unless a newer load already committed. It returns the
// snapshot left in the slot and whether snap was the one published.
func commit(s *slot, snap *Snapshot) (*Snapshot, bool) {
	for {
		cur := s.current.Load()
		if cur != nil && cur.Seq > snap.Seq {
			return cur, false
		}
		if s.current.CompareAndSwap(cur, snap) {
			return snap, true
		}
	}
}

// WarmUp loads every tool and locale pair concurrently. All loads run to
// completion; the first error is returned.
func (c *Catalog) WarmUp(ctx context.Context, tools []ToolType, locales []string) error {
	if len(tools) == 0 {
		for _, t := range c.tools.Types() {
			tools = append(tools, ToolType(t))
		}
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, tool := range tools {
		for _, locale := range locales {
			g.Go(func() error {
				if _, err := c.Load(ctx, tool, locale); err != nil {
					return fmt.Errorf("warm %s/%s: %w", tool, locale, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// Refresh reloads every loaded pair on each tick until ctx is done.
func (c *Catalog) Refresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

func (c *Catalog) refreshAll(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(4)
	c.slots.Range(func(_, v interface{}) bool {
		snap := v.(*slot).current.Load()
		if snap == nil {
			return true
		}
		g.Go(func() error {
			// Failures keep the previous snapshot and are already logged.
			_, _ = c.Load(ctx, snap.Tool, snap.Locale)
			return nil
		})
		return true
	})
	_ = g.Wait()
}

// Count is the number of published snapshots.
func (c *Catalog) Count() int {
	n := 0
	c.slots.Range(func(_, v interface{}) bool {
		if v.(*slot).current.Load() != nil {
			n++
		}
		return true
	})
	return n
}
