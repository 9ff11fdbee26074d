// Package snapshot holds immutable captures of source text and the routine differ
// used to decide whether a save introduced new code worth testing.
package snapshot

import (
	"regexp"
	"sort"
)

// Snapshot is an immutable capture of source text. Seq orders captures by arrival;
// the zero Snapshot means "nothing captured".
type Snapshot struct {
	Text string
	Seq  uint64
}

// New returns a snapshot of text with the given arrival sequence.
func New(text string, seq uint64) Snapshot {
	return Snapshot{Text: text, Seq: seq}
}

// IsEmpty reports whether the snapshot carries no text.
func (s Snapshot) IsEmpty() bool {
	return s.Text == ""
}

// SameText reports whether two snapshots hold identical text, regardless of arrival order.
func (s Snapshot) SameText(other Snapshot) bool {
	return s.Text == other.Text
}

// declPattern matches routine declarations in a syntax-shallow way:
//
//	function name(      JavaScript / TypeScript, optionally export/async
//	def name(           Python, optionally async
//	func name(          Go functions
//	func (r *T) name(   Go methods
//
// It is a heuristic trigger, not a parser. Known limitations: a renamed routine or a
// rewritten body is not reported; a name declared twice counts once; declarations inside
// strings or comments are matched too.
var declPattern = regexp.MustCompile(
	`(?m)^[ \t]*(?:export[ \t]+)?(?:default[ \t]+)?(?:async[ \t]+)?(?:function\*?|def|func)[ \t]+(?:\([^)]*\)[ \t]*)?([A-Za-z_$][\w$]*)[ \t]*\(`,
)

// Symbols returns the sorted set of routine names declared in text.
func Symbols(text string) []string {
	seen := make(map[string]struct{})
	for _, m := range declPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return sortedKeys(seen)
}

// DiffNewSymbols returns the sorted set of routine names declared in current and absent
// from previous. An empty result means no actionable change.
func DiffNewSymbols(current, previous Snapshot) []string {
	if current.SameText(previous) {
		return nil
	}

	old := make(map[string]struct{})
	for _, name := range Symbols(previous.Text) {
		old[name] = struct{}{}
	}

	added := make(map[string]struct{})
	for _, name := range Symbols(current.Text) {
		if _, ok := old[name]; !ok {
			added[name] = struct{}{}
		}
	}
	return sortedKeys(added)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
