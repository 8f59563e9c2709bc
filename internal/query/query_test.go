package query

import "testing"

func TestFingerprintDeterminism(t *testing.T) {
	// S1: two call sites with equal normalized text and schema must collapse
	// to one fingerprint.
	q1, _, err := Build("SELECT * FROM u WHERE id = ${}", []Slot{{SourceText: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	q2, _, err := Build("SELECT * FROM u WHERE id = ${}", []Slot{{SourceText: "y"}})
	if err != nil {
		t.Fatal(err)
	}

	if q1.Text != "SELECT * FROM u WHERE id = $1" {
		t.Fatalf("unexpected normalized text: %q", q1.Text)
	}
	if names := q1.Params.Names(); len(names) != 1 || names[0] != "x" {
		t.Fatalf("unexpected params: %v", names)
	}
	if q1.Fingerprint() != q2.Fingerprint() {
		t.Fatalf("expected equal fingerprints for queries differing only in slot source text: %q != %q",
			q1.Fingerprint(), q2.Fingerprint())
	}
	if len(q1.Fingerprint()) != FingerprintLength {
		t.Fatalf("fingerprint length = %d, want %d", len(q1.Fingerprint()), FingerprintLength)
	}
}

func TestFingerprintDiffersOnText(t *testing.T) {
	a, _, _ := Build("SELECT 1", nil)
	b, _, _ := Build("SELECT 2", nil)
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("expected different fingerprints for different text")
	}
}

func TestStubCarriesSentinelFingerprint(t *testing.T) {
	s := Stub("SELECT * FROM u WHERE id = $1")
	if s.Fingerprint() != InvalidFingerprint {
		t.Fatalf("stub fingerprint = %q, want %q", s.Fingerprint(), InvalidFingerprint)
	}
	if s.Dynamic {
		t.Fatal("a stub is not a dynamic query")
	}
}

func TestParamNameRejectsDigitOnly(t *testing.T) {
	s := NewParamSchema()
	for _, bad := range []string{"", "0", "42"} {
		if err := s.Set(bad, ParamString); err == nil {
			t.Fatalf("expected error for param name %q", bad)
		}
	}
	if err := s.Set("x1", ParamString); err != nil {
		t.Fatalf("x1 should be a valid name: %v", err)
	}
}

func TestParamRedeclareIncompatibleType(t *testing.T) {
	s := NewParamSchema()
	if err := s.Set("x", ParamInt); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("x", ParamInt); err != nil {
		t.Fatalf("redeclaring with same type should succeed: %v", err)
	}
	if err := s.Set("x", ParamString); err == nil {
		t.Fatal("expected error redeclaring x with incompatible type")
	}
}

func TestMergeFragmentCollisionRename(t *testing.T) {
	// S2: query k=x:int, fragment j=x:int -> fragment's x renamed to x2.
	query, _, err := Build("SELECT * FROM t WHERE k=${}", []Slot{{SourceText: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	query.Params = NewParamSchema()
	_ = query.Params.Set("x", ParamInt)

	fragment, _, err := Build("AND j=${}", []Slot{{SourceText: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	fragment.Params = NewParamSchema()
	_ = fragment.Params.Set("x", ParamInt)

	renames, warnings := query.Params.MergeFragment(fragment.Params)
	if renames["x"] != "x2" {
		t.Fatalf("expected x -> x2 rename, got %v", renames)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
}

func TestLateBoundMarkerSessionEnv(t *testing.T) {
	q, _, err := Build("SELECT * FROM t WHERE owner = %{SESSION.userId} AND stage = %{ENV.stage} AND n = %{count:int}", nil)
	if err != nil {
		t.Fatal(err)
	}
	if q.Text != "SELECT * FROM t WHERE owner = $1 AND stage = $2 AND n = $3" {
		t.Fatalf("unexpected text: %q", q.Text)
	}
	typ, ok := q.Params.Get("SESSION.userId")
	if !ok || typ != ParamSession {
		t.Fatalf("expected SESSION.userId:session, got %v ok=%v", typ, ok)
	}
	typ, ok = q.Params.Get("ENV.stage")
	if !ok || typ != ParamEnv {
		t.Fatalf("expected ENV.stage:env, got %v ok=%v", typ, ok)
	}
	typ, ok = q.Params.Get("count")
	if !ok || typ != ParamInt {
		t.Fatalf("expected count:int, got %v ok=%v", typ, ok)
	}
}

func TestPublicClassification(t *testing.T) {
	pub, _, _ := Build("SELECT 1 WHERE x = ${}", []Slot{{SourceText: "x"}})
	if !pub.IsPublic() {
		t.Fatal("expected query with only string param to be public")
	}
	priv, _, _ := Build("SELECT 1 WHERE owner = %{SESSION.userId}", nil)
	if priv.IsPublic() {
		t.Fatal("expected query with a session param to be private")
	}
}

func TestBuildInlinesStaticFragment(t *testing.T) {
	inner, _, _ := Build("SELECT id FROM u WHERE a = ${}", []Slot{{SourceText: "a"}})
	outer, _, err := Build("SELECT * FROM (${}) t", []Slot{{Fragment: inner}})
	if err != nil {
		t.Fatal(err)
	}
	if outer.Text != "SELECT * FROM (SELECT id FROM u WHERE a = $1) t" {
		t.Fatalf("unexpected inlined text: %q", outer.Text)
	}
	if !outer.Params.Has("a") {
		t.Fatalf("expected inlined fragment's param to be merged, got %v", outer.Params.Names())
	}
}

func TestWhitelistMergeSameFingerprintUnionsLocations(t *testing.T) {
	w := NewWhitelist()
	q1, _, _ := Build("SELECT 1 WHERE x = ${}", []Slot{{SourceText: "x"}})
	q1.Validators = []string{"validateX"}
	q2, _, _ := Build("SELECT 1 WHERE x = ${}", []Slot{{SourceText: "y"}})
	q2.Validators = []string{"validateX"}

	if err := w.Add(q1, SourceLocation{File: "a.go", Line: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(q2, SourceLocation{File: "b.go", Line: 2}); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 1 {
		t.Fatalf("expected 1 unique entry, got %d", w.Len())
	}
	entry, _ := w.Lookup(q1.Fingerprint())
	if len(entry.Referenced) != 2 {
		t.Fatalf("expected 2 referenced locations, got %d", len(entry.Referenced))
	}
}

func TestWhitelistValidatorMismatchFails(t *testing.T) {
	w := NewWhitelist()
	q1, _, _ := Build("SELECT 1 WHERE x = ${}", []Slot{{SourceText: "x"}})
	q1.Validators = []string{"validateX"}
	q2, _, _ := Build("SELECT 1 WHERE x = ${}", []Slot{{SourceText: "y"}})
	q2.Validators = []string{"validateOther"}

	if err := w.Add(q1, SourceLocation{File: "a.go"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(q2, SourceLocation{File: "b.go"}); err == nil {
		t.Fatal("expected validator mismatch error")
	}
}

func TestMergeRuntimeFragmentComposition(t *testing.T) {
	w := NewWhitelist()
	parent, _, _ := Build("SELECT * FROM t WHERE k=${}", []Slot{{SourceText: "x"}})
	frag, _, _ := Build("AND j=${}", []Slot{{SourceText: "x"}})
	if err := w.Add(parent, SourceLocation{File: "a.go"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(frag, SourceLocation{File: "b.go"}); err != nil {
		t.Fatal(err)
	}
	w.AllowFragment(parent.Fingerprint(), frag.Fingerprint())
	entry, _ := w.Lookup(parent.Fingerprint())
	parent.Fragments = entry.Fragments

	merged, warnings, err := Merge(parent, frag)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Text != "SELECT * FROM t WHERE k=$1 AND j=$2" {
		t.Fatalf("unexpected merged text: %q", merged.Text)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected rename warning, got %v", warnings)
	}
	if !merged.Params.Has("x") || !merged.Params.Has("x2") {
		t.Fatalf("expected params x and x2, got %v", merged.Params.Names())
	}
}

func TestMergeRejectsDisallowedFragment(t *testing.T) {
	parent, _, _ := Build("SELECT 1", nil)
	frag, _, _ := Build("AND 1=1", nil)
	if _, _, err := Merge(parent, frag); err == nil {
		t.Fatal("expected error merging an unregistered fragment")
	}
}

func TestMergeDynamicStripsFingerprint(t *testing.T) {
	parent, _, _ := Build("SELECT 1", nil)
	dyn := Unescaped("AND 1=1")
	merged, _, err := Merge(parent, dyn)
	if err != nil {
		t.Fatal(err)
	}
	if !merged.Dynamic {
		t.Fatal("expected merged query to be dynamic")
	}
	if merged.Fingerprint() != "" {
		t.Fatalf("expected empty fingerprint for dynamic merge, got %q", merged.Fingerprint())
	}
}
