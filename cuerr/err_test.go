package cuerr_test

import (
	"errors"
	"testing"

	"github.com/permaweb/ao-cu/cuerr"
)

func TestKindRoundtrip(t *testing.T) {
	err := cuerr.NotFound("process %s", "abc")
	if !cuerr.Is(err, cuerr.KindNotFound) {
		t.Fatalf("expected KindNotFound")
	}
	if cuerr.Is(err, cuerr.KindFatal) {
		t.Fatalf("unexpected KindFatal match")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := cuerr.Wrap(cuerr.KindTransient, cause, "fetching page")
	if errors.Unwrap(err) == nil {
		t.Fatalf("expected wrapped cause to unwrap")
	}
}

func TestErrsDedup(t *testing.T) {
	var es cuerr.Errs
	es.Add(errors.New("x"))
	es.Add(errors.New("x"))
	es.Add(errors.New("y"))
	if es.Cnt() != 2 {
		t.Fatalf("expected 2 distinct errors, got %d", es.Cnt())
	}
}
