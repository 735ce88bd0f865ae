package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		"DEBUG":  zerolog.DebugLevel,
		" warn ": zerolog.WarnLevel,
		"error":  zerolog.ErrorLevel,
		"info":   zerolog.InfoLevel,
		"":       zerolog.InfoLevel,
		"trace?": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
