package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/psaab/frpd/pkg/frp"
)

// CompileConfig converts a parsed ConfigTree AST into a typed Config struct.
func CompileConfig(tree *ConfigTree) (*Config, error) {
	cfg := &Config{
		Parser: ParserConfig{Variant: frp.VariantMGBE, Backend: DefaultBackend},
	}

	for _, node := range tree.Children {
		switch node.Name() {
		case "system":
			if err := compileSystem(node, &cfg.System); err != nil {
				return nil, fmt.Errorf("system: %w", err)
			}
		case "parser":
			if err := compileParser(node, &cfg.Parser); err != nil {
				return nil, fmt.Errorf("parser: %w", err)
			}
		case "rules":
			rules, err := compileRules(node)
			if err != nil {
				return nil, fmt.Errorf("rules: %w", err)
			}
			cfg.Rules = rules
		default:
			return nil, fmt.Errorf("unknown statement %q at line %d", node.Name(), node.Line)
		}
	}

	if err := ValidateRules(cfg.Rules, cfg.Parser.Variant); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return cfg, nil
}

func compileSystem(node *Node, sys *SystemConfig) error {
	for _, child := range node.Children {
		switch child.Name() {
		case "host-name":
			sys.HostName = child.Value()
		case "syslog":
			sl := &SyslogConfig{Port: DefaultSyslogPort, Facility: "daemon", Severity: "warning"}
			for _, opt := range child.Children {
				switch opt.Name() {
				case "host":
					sl.Host = opt.Value()
				case "port":
					p, err := strconv.ParseUint(opt.Value(), 10, 16)
					if err != nil {
						return fmt.Errorf("syslog port %q: %w", opt.Value(), err)
					}
					sl.Port = int(p)
				case "facility":
					sl.Facility = opt.Value()
				case "severity":
					sl.Severity = opt.Value()
				}
			}
			if sl.Host == "" {
				return fmt.Errorf("syslog missing host at line %d", child.Line)
			}
			sys.Syslog = sl
		case "metrics":
			if l := child.FindChild("listen"); l != nil {
				sys.MetricsListen = l.Value()
			}
		}
	}
	return nil
}

func compileParser(node *Node, pc *ParserConfig) error {
	for _, child := range node.Children {
		switch child.Name() {
		case "variant":
			v, err := frp.ParseVariant(child.Value())
			if err != nil {
				return err
			}
			pc.Variant = v
		case "backend":
			pc.Backend = child.Value()
		case "device":
			pc.Device = child.Value()
		case "pin-path":
			pc.PinPath = child.Value()
		}
	}
	return nil
}

func compileRules(node *Node) ([]frp.Rule, error) {
	var rules []frp.Rule
	for _, child := range node.FindChildren("rule") {
		if len(child.Keys) < 2 {
			return nil, fmt.Errorf("rule missing id at line %d", child.Line)
		}
		r, err := compileRule(child)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", child.Keys[1], err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func compileRule(node *Node) (frp.Rule, error) {
	var r frp.Rule
	id, err := strconv.ParseInt(node.Keys[1], 10, 32)
	if err != nil || id < 0 {
		return r, fmt.Errorf("invalid id %q", node.Keys[1])
	}
	r.ID = int32(id)

	var match string
	hasLink := false
	for _, prop := range node.Children {
		v := prop.Value()
		switch prop.Name() {
		case "match-type":
			if r.Kind, err = frp.ParseMatchKind(v); err != nil {
				return r, err
			}
		case "match":
			match = v
		case "offset":
			o, err := strconv.ParseUint(v, 0, 8)
			if err != nil {
				return r, fmt.Errorf("offset %q: %w", v, err)
			}
			r.Offset = uint8(o)
		case "action":
			if r.Mode, err = frp.ParseFilterMode(v); err != nil {
				return r, err
			}
		case "link-to":
			l, err := strconv.ParseInt(v, 10, 32)
			if err != nil || l < 0 {
				return r, fmt.Errorf("invalid link-to %q", v)
			}
			r.LinkID = int32(l)
			hasLink = true
		case "dma-channels":
			d, err := strconv.ParseUint(v, 0, 32)
			if err != nil {
				return r, fmt.Errorf("dma-channels %q: %w", v, err)
			}
			r.DMAChannels = uint32(d)
		}
	}

	if match == "" {
		return r, fmt.Errorf("missing match")
	}
	if r.Match, err = ParseMatch(r.Kind, match); err != nil {
		return r, err
	}
	if r.Mode.IsLink() != hasLink {
		if hasLink {
			return r, fmt.Errorf("link-to requires a link action, have %s", r.Mode)
		}
		return r, fmt.Errorf("action %s requires link-to", r.Mode)
	}
	return r, nil
}

// ParseMatch converts match text into match bytes. It accepts hex bytes
// separated by ':' or '-', a 0x-prefixed hex string, an IPv4 address for
// the IP kinds and a decimal port for the port kinds.
func ParseMatch(kind frp.MatchKind, s string) ([]byte, error) {
	switch kind {
	case frp.MatchL3SourceIP, frp.MatchL3DestIP:
		if a, err := netip.ParseAddr(s); err == nil {
			if !a.Is4() {
				return nil, fmt.Errorf("match %q: only IPv4 is supported", s)
			}
			b := a.As4()
			return b[:], nil
		}
	case frp.MatchL4SourceUDPPort, frp.MatchL4DestUDPPort,
		frp.MatchL4SourceTCPPort, frp.MatchL4DestTCPPort:
		if p, err := strconv.ParseUint(s, 10, 16); err == nil {
			return []byte{byte(p >> 8), byte(p)}, nil
		}
	}

	var digits string
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		digits = s[2:]
	case strings.ContainsAny(s, ":-"):
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
		for _, p := range parts {
			if len(p) != 2 {
				return nil, fmt.Errorf("match %q: byte %q is not two hex digits", s, p)
			}
		}
		digits = strings.Join(parts, "")
	default:
		digits = s
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", s, err)
	}
	if len(b) == 0 || len(b) > frp.MatchDataMax {
		return nil, fmt.Errorf("match %q: %d bytes, want 1 to %d", s, len(b), frp.MatchDataMax)
	}
	return b, nil
}

// FormatMatch renders match bytes in the colon separated hex form.
func FormatMatch(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":")
}

// ValidateRules checks each rule for variant v and that every link target
// is defined.
func ValidateRules(rules []frp.Rule, v frp.Variant) error {
	ids := make(map[int32]bool, len(rules))
	for _, r := range rules {
		if ids[r.ID] {
			return fmt.Errorf("duplicate rule %d", r.ID)
		}
		ids[r.ID] = true
	}
	for _, r := range rules {
		if err := r.Validate(v); err != nil {
			return err
		}
		if r.Mode.IsLink() && !ids[r.LinkID] {
			return fmt.Errorf("rule %d links to undefined rule %d", r.ID, r.LinkID)
		}
	}

	links := make(map[int32]int32)
	for _, r := range rules {
		if r.Mode.IsLink() {
			links[r.ID] = r.LinkID
		}
	}
	for _, r := range rules {
		seen := map[int32]bool{r.ID: true}
		for id, ok := links[r.ID]; ok; id, ok = links[id] {
			if seen[id] {
				return fmt.Errorf("rule %d is part of a link cycle", r.ID)
			}
			seen[id] = true
		}
	}
	return nil
}

// RuleSetPaths returns the set paths that define r.
func RuleSetPaths(r frp.Rule) [][]string {
	base := []string{"rules", "rule", strconv.Itoa(int(r.ID))}
	with := func(kv ...string) []string {
		return append(append([]string(nil), base...), kv...)
	}
	paths := [][]string{
		with("match-type", r.Kind.String()),
		with("match", FormatMatch(r.Match)),
		with("action", r.Mode.String()),
	}
	if r.Kind == frp.MatchNormal {
		paths = append(paths, with("offset", strconv.Itoa(int(r.Offset))))
	}
	if r.Mode.IsLink() {
		paths = append(paths, with("link-to", strconv.Itoa(int(r.LinkID))))
	}
	if r.DMAChannels != 0 {
		paths = append(paths, with("dma-channels", fmt.Sprintf("0x%x", r.DMAChannels)))
	}
	return paths
}
