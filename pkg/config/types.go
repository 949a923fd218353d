// Package config parses the Junos-style frpd configuration and compiles it
// into typed settings and parser rules.
package config

import "github.com/psaab/frpd/pkg/frp"

// Config is the compiled configuration.
type Config struct {
	System SystemConfig `json:"system"`
	Parser ParserConfig `json:"parser"`
	Rules  []frp.Rule   `json:"rules"`
}

// SystemConfig holds daemon-wide settings.
type SystemConfig struct {
	HostName      string        `json:"host_name,omitempty"`
	Syslog        *SyslogConfig `json:"syslog,omitempty"`
	MetricsListen string        `json:"metrics_listen,omitempty"`
}

// SyslogConfig selects a remote syslog collector.
type SyslogConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Facility string `json:"facility"`
	Severity string `json:"severity"`
}

// ParserConfig selects the MAC and the backend that programs it.
type ParserConfig struct {
	Variant frp.Variant `json:"variant"`
	Backend string      `json:"backend"`
	Device  string      `json:"device,omitempty"`
	PinPath string      `json:"pin_path,omitempty"`
}

// Defaults applied by CompileConfig.
const (
	DefaultBackend    = "memory"
	DefaultSyslogPort = 514
)
