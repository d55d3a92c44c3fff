package culog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/permaweb/ao-cu/culog"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := culog.New(&buf, "test")
	l.SetLevel(culog.SevWarn)
	l.Infof("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected info line to be gated out, got %q", buf.String())
	}
	l.Warnf("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn line to be written, got %q", buf.String())
	}
}

func TestTaggedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := culog.New(&buf, "test")
	tagged := l.With("process=P1", "ordinate=3")
	tagged.Infof("evaluated")
	out := buf.String()
	if !strings.Contains(out, "process=P1") || !strings.Contains(out, "ordinate=3") {
		t.Fatalf("expected tags in output, got %q", out)
	}
}
