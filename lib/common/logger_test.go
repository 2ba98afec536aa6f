package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestLoggingFactory(t *testing.T) {
	var buf bytes.Buffer
	lg := Logging{Level: logger.WARNING, Output: &buf}
	l := lg.Factory()("index")

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	l.Errorf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warning level: %q", out)
	}
	if !strings.Contains(out, "WARN  | index      | shown 2") {
		t.Errorf("missing warning line in %q", out)
	}
	if !strings.Contains(out, "ERROR | index      | shown 3") {
		t.Errorf("missing error line in %q", out)
	}

	buf.Reset()
	l.SetLevel(logger.DEBUG)
	l.Debugf("details")
	if !strings.Contains(buf.String(), "DEBUG | index      | details") {
		t.Errorf("missing debug line in %q", buf.String())
	}
}

func TestLoggingPanicf(t *testing.T) {
	var buf bytes.Buffer
	l := Logging{Level: logger.ERROR, Output: &buf}.Factory()("cmd")

	defer func() {
		if r := recover(); r != "broken 7" {
			t.Errorf("expected panic with message, got %v", r)
		}
		if !strings.Contains(buf.String(), "CRIT  | cmd        | broken 7") {
			t.Errorf("missing critical line in %q", buf.String())
		}
	}()
	l.Panicf("broken %d", 7)
}

func TestNewLogging(t *testing.T) {
	lg, err := NewLogging(Config{LogLevel: "debug"})
	if err != nil {
		t.Fatalf("NewLogging failed: %v", err)
	}
	if lg.Level != logger.DEBUG || len(lg.Names) == 0 || lg.Output == nil {
		t.Errorf("unexpected logging setup %+v", lg)
	}

	if _, err := NewLogging(Config{LogLevel: "loud"}); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}
