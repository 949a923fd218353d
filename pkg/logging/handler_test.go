package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  int
	}{
		{slog.LevelError, SyslogError},
		{slog.LevelError + 4, SyslogError},
		{slog.LevelWarn, SyslogWarning},
		{slog.LevelInfo, SyslogInfo},
		{slog.LevelDebug, SyslogDebug},
	}
	for _, tt := range tests {
		if got := Severity(tt.level); got != tt.want {
			t.Errorf("Severity(%v) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestHandler_ForwardsAboveSeverity(t *testing.T) {
	pc, client := listen(t)
	client.MinSeverity = SyslogWarning

	var local bytes.Buffer
	log := slog.New(NewHandler(slog.NewTextHandler(&local, nil), client))
	log = log.With("backend", "mmio")

	log.Info("rule added", "id", 10)
	log.Warn("hardware write failed", "op", "add", "id", 11)

	got := receive(t, pc)
	if !strings.HasPrefix(got, "<28>") {
		t.Errorf("priority: %q", got)
	}
	if !strings.HasSuffix(got, "frpd: hardware write failed backend=mmio op=add id=11") {
		t.Errorf("message = %q", got)
	}

	out := local.String()
	if !strings.Contains(out, "rule added") || !strings.Contains(out, "hardware write failed") {
		t.Errorf("local handler missed records: %q", out)
	}
}

func TestHandler_Groups(t *testing.T) {
	pc, client := listen(t)

	var local bytes.Buffer
	log := slog.New(NewHandler(slog.NewTextHandler(&local, nil), client))
	log.WithGroup("frp").Error("sync failed", "slots", 3)

	if got := receive(t, pc); !strings.HasSuffix(got, "sync failed frp.slots=3") {
		t.Errorf("message = %q", got)
	}
}

func TestHandler_Enabled(t *testing.T) {
	client := &SyslogClient{MinSeverity: SyslogWarning}
	h := NewHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}), client)
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warning should be enabled through syslog")
	}
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled by both")
	}
}
