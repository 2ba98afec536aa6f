package common

import (
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DEBUG},
		{"INFO", logger.INFO},
		{"warn", logger.WARNING},
		{"warning", logger.WARNING},
		{"error", logger.ERROR},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}

func TestConfigString(t *testing.T) {
	c := DefaultConfig()
	c.SplitCollections = true
	s := c.String()

	for _, want := range []string{"LOGGING", "INDEX", "MAP", "Split Separator", "auto"} {
		if !strings.Contains(s, want) {
			t.Errorf("config output is missing %q:\n%s", want, s)
		}
	}
}
