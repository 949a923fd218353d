package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/psaab/frpd/pkg/frp"
)

const sampleYAML = `
rules:
  - id: 1
    match-type: l2-dst
    match: "ff:ff:ff:ff:ff:ff"
    action: drop
  - id: 2
    match-type: l4-dst-udp-port
    match: "53"
    action: im-link
    link-to: 1
    dma-channels: 0x5
  - id: 3
    match: "0x88f7"
    offset: 12
`

func TestParseRulesYAML(t *testing.T) {
	rules, err := ParseRulesYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseRulesYAML: %v", err)
	}
	want := []frp.Rule{
		{ID: 1, Kind: frp.MatchL2Dest, Match: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, Mode: frp.ModeDrop},
		{ID: 2, Kind: frp.MatchL4DestUDPPort, Match: []byte{0, 53}, Mode: frp.ModeInverseLink, LinkID: 1, DMAChannels: 5},
		{ID: 3, Match: []byte{0x88, 0xf7}, Offset: 12, Mode: frp.ModeRoute},
	}
	if len(rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(rules), len(want))
	}
	for i := range want {
		if !rules[i].Equal(want[i]) {
			t.Errorf("rule %d = %+v, want %+v", want[i].ID, rules[i], want[i])
		}
	}
	if err := ValidateRules(rules, frp.VariantMGBE); err != nil {
		t.Errorf("ValidateRules: %v", err)
	}
}

func TestParseRulesYAML_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":         "rules: [",
		"missing match":  "rules:\n  - id: 1\n",
		"bad kind":       "rules:\n  - id: 1\n    match-type: ipv6\n    match: '01'\n",
		"orphan link-to": "rules:\n  - id: 1\n    match: '01'\n    link-to: 2\n",
		"link no target": "rules:\n  - id: 1\n    match: '01'\n    action: link\n",
		"negative id":    "rules:\n  - id: -1\n    match: '01'\n",
	}
	for name, doc := range tests {
		if _, err := ParseRulesYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadRulesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRulesYAML(path)
	if err != nil {
		t.Fatalf("LoadRulesYAML: %v", err)
	}
	if len(rules) != 3 {
		t.Errorf("got %d rules", len(rules))
	}
	if _, err := LoadRulesYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
