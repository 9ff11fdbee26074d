// Package session holds the per-session conversational state: the snapshots the
// orchestrator remembers and the single pending yes/no question.
package session

import (
	"slices"
	"sync"

	"codecoach/pkg/snapshot"
)

// Pending names the yes/no question currently awaiting an answer.
type Pending int

const (
	PendingNone Pending = iota
	AwaitingAnalysis
	AwaitingTest
)

func (p Pending) String() string {
	switch p {
	case PendingNone:
		return "none"
	case AwaitingAnalysis:
		return "awaiting-analysis-confirmation"
	case AwaitingTest:
		return "awaiting-test-confirmation"
	default:
		return "unknown"
	}
}

// Question is a consumed pending context together with the snapshot it was asked about.
type Question struct {
	Kind     Pending
	Snapshot snapshot.Snapshot
}

// State is safe for concurrent use. Only the four named snapshots are kept.
type State struct {
	mu sync.Mutex

	seq     uint64
	pending Pending

	lastSeen     snapshot.Snapshot
	lastAnalyzed snapshot.Snapshot
	pendingSnap  snapshot.Snapshot
	lastChecked  snapshot.Snapshot

	// symbols offered by the last test question, so a save that leaves the
	// new-symbol set unchanged does not ask again
	lastOffered []string
}

// New returns an empty state.
func New() *State {
	return &State{}
}

// Capture stamps text with the next sequence number and records it as last-seen.
func (s *State) Capture(text string) snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureLocked(text)
}

func (s *State) captureLocked(text string) snapshot.Snapshot {
	s.seq++
	snap := snapshot.New(text, s.seq)
	s.lastSeen = snap
	return snap
}

// LastSeen returns the most recently captured snapshot.
func (s *State) LastSeen() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// LastAnalyzed returns the snapshot tests were last generated for.
func (s *State) LastAnalyzed() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAnalyzed
}

// MarkAnalyzed records snap as the baseline for the next save comparison.
func (s *State) MarkAnalyzed(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyzed = snap
	s.lastOffered = nil
}

// SetLastChecked records the poller sample behind the current alert.
func (s *State) SetLastChecked(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChecked = snap
}

// LastChecked returns the poller sample behind the current alert.
func (s *State) LastChecked() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChecked
}

// SaveOffer evaluates a saved text against the last-analyzed snapshot. It returns the
// captured snapshot and the symbols worth offering tests for; no symbols means the save
// needs no question. A save whose new-symbol set equals the one already offered returns
// no symbols.
func (s *State) SaveOffer(text string) (snapshot.Snapshot, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.captureLocked(text)
	if snap.SameText(s.lastAnalyzed) {
		return snap, nil
	}
	symbols := snapshot.DiffNewSymbols(snap, s.lastAnalyzed)
	if len(symbols) == 0 || slices.Equal(symbols, s.lastOffered) {
		return snap, nil
	}
	return snap, symbols
}

// AskAnalysis makes analysis confirmation the pending question, replacing any other.
// It returns the question it replaced.
func (s *State) AskAnalysis() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.pending
	s.pending = AwaitingAnalysis
	s.pendingSnap = snapshot.Snapshot{}
	return prev
}

// AskTest makes test confirmation for snap the pending question, replacing any other.
// symbols are remembered so an unchanged save does not ask twice.
func (s *State) AskTest(snap snapshot.Snapshot, symbols []string) Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.pending
	s.pending = AwaitingTest
	s.pendingSnap = snap
	s.lastOffered = slices.Clone(symbols)
	return prev
}

// Pending returns the question awaiting an answer without consuming it.
func (s *State) Pending() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Take consumes the pending question. Concurrent callers cannot both receive the same
// question: all but one see PendingNone.
func (s *State) Take() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := Question{Kind: s.pending, Snapshot: s.pendingSnap}
	s.pending = PendingNone
	s.pendingSnap = snapshot.Snapshot{}
	return q
}

// TakeIf consumes the pending question only if it is kind.
func (s *State) TakeIf(kind Pending) (Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != kind || kind == PendingNone {
		return Question{}, false
	}
	q := Question{Kind: s.pending, Snapshot: s.pendingSnap}
	s.pending = PendingNone
	s.pendingSnap = snapshot.Snapshot{}
	return q, true
}

// Withdraw consumes the pending question if it is kind and forgets the symbols it offered,
// so an offer that never reached the user can be made again.
func (s *State) Withdraw(kind Pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != kind || kind == PendingNone {
		return false
	}
	s.pending = PendingNone
	s.pendingSnap = snapshot.Snapshot{}
	if kind == AwaitingTest {
		s.lastOffered = nil
	}
	return true
}

// Reset drops the pending question and every remembered snapshot. The sequence counter
// keeps counting so later snapshots still order after earlier ones.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingNone
	s.pendingSnap = snapshot.Snapshot{}
	s.lastSeen = snapshot.Snapshot{}
	s.lastChecked = snapshot.Snapshot{}
	s.lastAnalyzed = snapshot.Snapshot{}
	s.lastOffered = nil
}
