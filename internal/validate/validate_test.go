package validate

import (
	"context"
	"testing"
)

func TestErrorsAddFirstWins(t *testing.T) {
	errs := NewErrors()
	errs.Add("email", "is required")
	errs.Add("email", "is invalid")
	msg, ok := errs.Field("email")
	if !ok || msg != "is required" {
		t.Fatalf("expected first message to win, got %q ok=%v", msg, ok)
	}
}

func TestErrorsAddNonField(t *testing.T) {
	errs := NewErrors()
	errs.Add("", "top level failure")
	errs.Add("", "another failure")
	nf := errs.NonField()
	if len(nf) != 2 || nf[0] != "top level failure" || nf[1] != "another failure" {
		t.Fatalf("unexpected non-field errors: %v", nf)
	}
}

func TestErrorsIsEmpty(t *testing.T) {
	errs := NewErrors()
	if !errs.IsEmpty() {
		t.Fatal("expected fresh Errors to be empty")
	}
	errs.Add("x", "bad")
	if errs.IsEmpty() {
		t.Fatal("expected Errors to be non-empty after Add")
	}
}

func TestRunNoValidatorsReturnsNil(t *testing.T) {
	errs, err := Run(context.Background(), map[string]any{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if errs != nil {
		t.Fatalf("expected nil Errors when no validators fail, got %v", errs)
	}
}

func TestRunRejectsUndefinedSentinel(t *testing.T) {
	params := map[string]any{"name": Undefined}
	_, err := Run(context.Background(), params, func(ctx context.Context, errs *Errors, params map[string]any) error {
		t.Fatal("validator must not run when a param is Undefined")
		return nil
	})
	if err == nil {
		t.Fatal("expected error for Undefined param")
	}
}

func TestRunAllowsExplicitNil(t *testing.T) {
	params := map[string]any{"name": nil}
	ran := false
	errs, err := Run(context.Background(), params, func(ctx context.Context, errs *Errors, params map[string]any) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected validator to run for explicit nil param")
	}
	if errs != nil {
		t.Fatalf("expected nil Errors, got %v", errs)
	}
}

func TestRunAccumulatesAcrossValidators(t *testing.T) {
	params := map[string]any{"age": -1, "name": ""}
	errs, err := Run(context.Background(), params,
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			if params["age"].(int) < 0 {
				errs.Add("age", "must be non-negative")
			}
			return nil
		},
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			if params["name"].(string) == "" {
				errs.Add("name", "is required")
			}
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if errs == nil {
		t.Fatal("expected populated Errors")
	}
	if msg, ok := errs.Field("age"); !ok || msg != "must be non-negative" {
		t.Fatalf("unexpected age error: %q ok=%v", msg, ok)
	}
	if msg, ok := errs.Field("name"); !ok || msg != "is required" {
		t.Fatalf("unexpected name error: %q ok=%v", msg, ok)
	}
}

func TestRunDeclarationOrderDeterminesFieldWinner(t *testing.T) {
	params := map[string]any{"x": 1}
	errs, err := Run(context.Background(), params,
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			errs.Add("x", "first validator's message")
			return nil
		},
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			errs.Add("x", "second validator's message")
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if msg, _ := errs.Field("x"); msg != "first validator's message" {
		t.Fatalf("expected first-declared validator to win, got %q", msg)
	}
}

func TestRunStopsOnValidatorError(t *testing.T) {
	params := map[string]any{"x": 1}
	called := false
	_, err := Run(context.Background(), params,
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			return ErrUndefinedParam
		},
		func(ctx context.Context, errs *Errors, params map[string]any) error {
			called = true
			return nil
		},
	)
	if err == nil {
		t.Fatal("expected error from first validator to propagate")
	}
	if called {
		t.Fatal("expected second validator not to run after first validator's error")
	}
}
