package query

import (
	"encoding/json"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
)

// Entry is one whitelist record: a fingerprint's normalized text, parameter
// schema, validator symbol names, and the fragment fingerprints it may merge
// with at runtime.
type Entry struct {
	Fingerprint string            `json:"fingerprint"`
	Text        string            `json:"text"`
	Params      []ParamEntry      `json:"params"`
	Validators  []string          `json:"validators"`
	Fragments   []string          `json:"fragments,omitempty"`
	Public      bool              `json:"public"`
	Referenced  []SourceLocation  `json:"referenced"`
}

// ParamEntry is the JSON-stable form of one (name, type) schema pair.
type ParamEntry struct {
	Name string    `json:"name"`
	Type ParamType `json:"type"`
}

func schemaToParamEntries(s *ParamSchema) []ParamEntry {
	names := s.Names()
	out := make([]ParamEntry, 0, len(names))
	for _, name := range names {
		typ, _ := s.Get(name)
		out = append(out, ParamEntry{Name: name, Type: typ})
	}
	return out
}

func paramEntriesToSchema(entries []ParamEntry) *ParamSchema {
	s := NewParamSchema()
	for _, e := range entries {
		_ = s.Set(e.Name, e.Type)
	}
	return s
}

// Whitelist is the compiler's output: every unique query fingerprint seen
// across a source tree.
type Whitelist struct {
	entries map[string]*Entry
}

// NewWhitelist returns an empty whitelist.
func NewWhitelist() *Whitelist {
	return &Whitelist{entries: make(map[string]*Entry)}
}

// ErrValidatorMismatch is returned when the same fingerprint is produced by
// two call sites whose validator sets differ.
var ErrValidatorMismatch = errors.New("query compiled with two different validator sets")

// Add merges q (with its call site loc) into the whitelist. If a query with
// the same fingerprint already exists, their referenced locations are
// unioned and their validator sets must be equal, or Add fails — the same
// query cannot carry two validation regimes.
func (w *Whitelist) Add(q *Query, loc SourceLocation) error {
	fp := q.Fingerprint()
	if fp == "" || fp == InvalidFingerprint {
		return errors.Newf("refusing to whitelist a query with sentinel/empty fingerprint %q", fp)
	}

	if existing, ok := w.entries[fp]; ok {
		if !sameValidatorSet(existing.Validators, q.Validators) {
			return errors.Wrapf(ErrValidatorMismatch, "fingerprint=%s", fp)
		}
		existing.Referenced = append(existing.Referenced, loc)
		existing.Fragments = unionStrings(existing.Fragments, q.Fragments)
		return nil
	}

	w.entries[fp] = &Entry{
		Fingerprint: fp,
		Text:        q.Text,
		Params:      schemaToParamEntries(q.Params),
		Validators:  slices.Clone(q.Validators),
		Fragments:   slices.Clone(q.Fragments),
		Public:      q.IsPublic(),
		Referenced:  []SourceLocation{loc},
	}
	return nil
}

// AllowFragment records on fp's entry that it may merge in fragment fragFP at
// runtime. It does nothing when fp is not whitelisted, and it does not touch
// any Query value: Merge checks the parent Query's own Fragments field.
func (w *Whitelist) AllowFragment(fp, fragFP string) {
	e, ok := w.entries[fp]
	if !ok {
		return
	}
	if !containsFingerprint(e.Fragments, fragFP) {
		e.Fragments = append(e.Fragments, fragFP)
	}
}

// Lookup returns the entry for fp, if whitelisted.
func (w *Whitelist) Lookup(fp string) (*Entry, bool) {
	e, ok := w.entries[fp]
	return e, ok
}

// Executable reports whether fp is whitelisted and, for each fragFP listed,
// that it is in fp's declared allowed-fragment set.
func (w *Whitelist) Executable(fp string, fragFPs ...string) bool {
	e, ok := w.entries[fp]
	if !ok {
		return false
	}
	for _, frag := range fragFPs {
		if !containsFingerprint(e.Fragments, frag) {
			return false
		}
	}
	return true
}

// Entries returns all entries sorted by fingerprint, for deterministic
// output (e.g. the compiler's emitted whitelist file).
func (w *Whitelist) Entries() []*Entry {
	out := make([]*Entry, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Len returns the number of unique fingerprints.
func (w *Whitelist) Len() int { return len(w.entries) }

// MarshalJSON encodes the whitelist as a sorted array of entries — the wire
// format consumed by the server at load time.
func (w *Whitelist) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Entries())
}

// UnmarshalJSON loads a whitelist previously produced by MarshalJSON.
func (w *Whitelist) UnmarshalJSON(data []byte) error {
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	w.entries = make(map[string]*Entry, len(entries))
	for _, e := range entries {
		w.entries[e.Fingerprint] = e
	}
	return nil
}

func sameValidatorSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := slices.Clone(a), slices.Clone(b)
	sort.Strings(sa)
	sort.Strings(sb)
	return slices.Equal(sa, sb)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := slices.Clone(a)
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
			seen[s] = struct{}{}
		}
	}
	return out
}
