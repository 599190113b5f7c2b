package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	os.Exit(m.Run())
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3) // debug level
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), output)
	}

	wantPrefixes := []string{"ERR", "WRN", "INF", "DBG", "TRC"}
	for i, prefix := range wantPrefixes {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d %q missing prefix %q", i, lines[i], prefix)
		}
	}
}

func TestLogger_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(0) // quiet
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Info("should not appear")
	l.Warn("should not appear")
	l.Verbose("should not appear")
	l.Debug("should not appear")
	l.Error("always appears")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 {
		t.Errorf("expected 1 line in quiet mode, got %d:\n%s", len(lines), output)
	}
}

func TestLogger_VerboseHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(2)
	l.SetOutput(&buf)

	l.Verbose("shown")
	l.Debug("hidden")

	if !strings.Contains(buf.String(), "shown") || strings.Contains(buf.String(), "hidden") {
		t.Errorf("unexpected output at verbosity 2: %q", buf.String())
	}
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(true)

	l.Info("test")

	output := buf.String()
	// Timestamp format is "HH:MM:SS.mmm"
	if !strings.Contains(output, ":") || len(output) < 15 {
		t.Errorf("expected timestamp prefix, got %q", output)
	}
}

func TestLogger_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetFormat(FormatJSON)

	l.With("fd", 17).Warn("client %s dropped", "x")

	var ev map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if ev["level"] != "warn" {
		t.Errorf("level = %v, want warn", ev["level"])
	}
	if ev["message"] != "client x dropped" {
		t.Errorf("message = %v", ev["message"])
	}
	if ev["fd"] != float64(17) {
		t.Errorf("fd = %v, want 17", ev["fd"])
	}
}

func TestLogger_LeavesGlobalLevelAlone(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defer zerolog.SetGlobalLevel(prev)

	l := NewLogger(3)
	l.SetFormat(FormatJSON)
	l.SetOutput(&bytes.Buffer{})

	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("global level = %s after building a logger, want info", got)
	}
}
