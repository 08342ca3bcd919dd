package presets

import (
	"context"
	"sync"

	"preset-workers/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestRecord(id, subject, modifier, locale, result string) TemplateRecord {
	return TemplateRecord{
		ID:          id,
		ToolType:    ToolAvatar,
		SubjectRef:  subject,
		ModifierRef: modifier,
		Locale:      locale,
		ResultURL:   result,
	}
}

func createTestProfile(tool string) registry.ToolProfile {
	p, ok := registry.Default().Profile(tool)
	if !ok {
		panic("unknown test tool " + tool)
	}
	return p
}

// fakeSource serves canned records per tool and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	records map[ToolType][]RawRecord
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, tool ToolType, locale string) ([]RawRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	recs := f.records[tool]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
