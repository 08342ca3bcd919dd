package presets

import "sync"

// SessionState is the lifecycle of one tool session.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateReady      SessionState = "ready"
	StateResolving  SessionState = "resolving"
	StateLoadFailed SessionState = "loadFailed"
)

// Session tracks one user's tool page: the index being loaded, the latest
// selection, and the last resolved result. Only the most recently started
// load may commit, and a selection made while loading is resolved once the
// index arrives.
type Session struct {
	mu sync.Mutex

	tier   Tier
	tool   ToolType
	locale string

	state   SessionState
	seq     uint64
	index   *CombinationIndex
	pending *Selection
	last    ResolvedResult
	loadErr error
}

func NewSession(tier Tier) *Session {
	return &Session{tier: tier, state: StateLoading, last: ResolvedResult{Status: StatusNoMatch}}
}

// BeginLoad starts a fetch for tool and locale and returns its sequence
// number. Any load started earlier becomes stale.
func (s *Session) BeginLoad(tool ToolType, locale string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.tool = tool
	s.locale = NormalizeLocale(locale)
	s.state = StateLoading
	s.loadErr = nil
	return s.seq
}

// CompleteLoad commits ix if seq is the latest load. A pending selection is
// resolved against the new index; its result is returned with resolved=true.
func (s *Session) CompleteLoad(seq uint64, ix *CombinationIndex) (result ResolvedResult, resolved, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq || s.state != StateLoading {
		return ResolvedResult{}, false, false
	}
	s.index = ix
	s.state = StateReady

	if s.pending == nil {
		return ResolvedResult{}, false, true
	}
	sel := *s.pending
	s.pending = nil
	return s.resolveLocked(sel), true, true
}

// FailLoad moves the session to LoadFailed if seq is the latest load.
func (s *Session) FailLoad(seq uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq || s.state != StateLoading {
		return false
	}
	s.state = StateLoadFailed
	s.loadErr = err
	return true
}

// Retry restarts loading after a failure for the same tool and locale.
func (s *Session) Retry() uint64 {
	s.mu.Lock()
	tool, locale := s.tool, s.locale
	s.mu.Unlock()
	return s.BeginLoad(tool, locale)
}

// Select records or resolves a selection. While loading the selection is kept
// (last one wins) and pending is true. After a failed load the result is
// noMatch.
func (s *Session) Select(sel Selection) (result ResolvedResult, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoading:
		s.pending = &sel
		return ResolvedResult{Status: StatusNoMatch}, true
	case StateLoadFailed:
		s.last = ResolvedResult{Status: StatusNoMatch}
		return s.last, false
	default:
		return s.resolveLocked(sel), false
	}
}

func (s *Session) resolveLocked(sel Selection) ResolvedResult {
	s.state = StateResolving
	if sel.Locale == "" {
		sel.Locale = s.locale
	}
	s.last = Resolve(s.index, sel, s.tier)
	s.state = StateReady
	return s.last
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns the most recent resolution.
func (s *Session) LastResult() ResolvedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Err returns the error of the failed load, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Index returns the committed index, nil before the first successful load.
func (s *Session) Index() *CombinationIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
