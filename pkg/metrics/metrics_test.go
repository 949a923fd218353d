package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psaab/frpd/pkg/frp"
)

type stubHW struct {
	failSlot error
}

func (stubHW) DisableParser() error         { return nil }
func (stubHW) EnableParser() error          { return nil }
func (stubHW) WriteValidCount(uint32) error { return nil }

func (h stubHW) WriteSlot(uint32, frp.Slot) error { return h.failSlot }

type probingHW struct{ stubHW }

func (probingHW) ParserSupported() bool { return false }

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x: %w", frp.ErrValidation), "invalid"},
		{frp.ErrCapacity, "no_space"},
		{frp.ErrConflict, "conflict"},
		{frp.ErrNotFound, "not_found"},
		{frp.ErrHardware, "hardware"},
		{errors.New("other"), "hardware"},
	}
	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHardware_CountsOperations(t *testing.T) {
	m := New()
	mgr := frp.NewManager(m.Hardware(stubHW{}), frp.VariantMGBE)
	err := mgr.Add(frp.Rule{ID: 1, Match: make([]byte, 5)})
	m.ObserveCommand(frp.OpAdd, err)
	m.SetTable(mgr.Len(), mgr.InSync())
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Two rule slots and the catch-all.
	if got := testutil.ToFloat64(m.hwOps.WithLabelValues("write_slot")); got != 3 {
		t.Errorf("write_slot = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("add", "ok")); got != 1 {
		t.Errorf("add/ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.liveSlots); got != 2 {
		t.Errorf("live slots = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.inSync); got != 1 {
		t.Errorf("in sync = %v, want 1", got)
	}
}

func TestHardware_CountsErrors(t *testing.T) {
	m := New()
	mgr := frp.NewManager(m.Hardware(stubHW{failSlot: errors.New("busy")}), frp.VariantMGBE)
	err := mgr.Add(frp.Rule{ID: 1, Match: []byte{1}})
	m.ObserveCommand(frp.OpAdd, err)

	if got := testutil.ToFloat64(m.hwErrors.WithLabelValues("write_slot")); got != 1 {
		t.Errorf("write_slot errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("add", "hardware")); got != 1 {
		t.Errorf("add/hardware = %v, want 1", got)
	}
}

func TestHardware_KeepsFeatureReport(t *testing.T) {
	m := New()
	p, ok := m.Hardware(probingHW{}).(frp.FeatureProber)
	if !ok || p.ParserSupported() {
		t.Error("wrapped prober must report no parser")
	}
	if p := m.Hardware(stubHW{}).(frp.FeatureProber); !p.ParserSupported() {
		t.Error("plain hardware must report a parser")
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCommand(frp.OpDelete, frp.ErrNotFound)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `frpd_commands_total{op="delete",result="not_found"} 1`) {
		t.Errorf("missing command counter in:\n%s", body)
	}
}
