// Package logging forwards daemon log records to a remote RFC 3164 syslog
// collector.
package logging

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Syslog severities (RFC 3164). Lower is more urgent.
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogNotice  = 5
	SyslogInfo    = 6
	SyslogDebug   = 7
)

// Syslog facility codes (RFC 3164).
const (
	FacilityKern   = 0
	FacilityUser   = 1
	FacilityDaemon = 3
	FacilityAuth   = 4
	FacilitySyslog = 5
	FacilityLocal0 = 16
	FacilityLocal7 = 23
)

const tag = "frpd"

var severities = map[string]int{
	"error":   SyslogError,
	"warning": SyslogWarning,
	"notice":  SyslogNotice,
	"info":    SyslogInfo,
	"debug":   SyslogDebug,
}

var facilities = map[string]int{
	"kern":   FacilityKern,
	"user":   FacilityUser,
	"daemon": FacilityDaemon,
	"auth":   FacilityAuth,
	"syslog": FacilitySyslog,
}

func init() {
	for i := 0; i <= FacilityLocal7-FacilityLocal0; i++ {
		facilities["local"+strconv.Itoa(i)] = FacilityLocal0 + i
	}
}

// ParseSeverity returns the severity for name, or 0 (no filter) when the
// name is unknown.
func ParseSeverity(name string) int {
	return severities[name]
}

// ParseFacility returns the facility code for name. Unknown names map to
// the daemon facility.
func ParseFacility(name string) int {
	if f, ok := facilities[name]; ok {
		return f
	}
	return FacilityDaemon
}

// SyslogClient writes RFC 3164 messages over UDP.
type SyslogClient struct {
	conn     net.Conn
	hostname string

	Facility    int
	MinSeverity int // least urgent severity sent; 0 sends everything
}

// NewSyslogClient dials host:port. hostname is put in the message header;
// the local host name is used when it is empty.
func NewSyslogClient(host string, port int, hostname string) (*SyslogClient, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s: %w", addr, err)
	}
	if hostname == "" {
		if hostname, _ = os.Hostname(); hostname == "" {
			hostname = tag
		}
	}
	return &SyslogClient{conn: conn, hostname: hostname, Facility: FacilityDaemon}, nil
}

// ShouldSend reports whether severity passes the client's filter.
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// Send writes one message. Each message is a single datagram.
func (s *SyslogClient) Send(severity int, msg string) error {
	b := make([]byte, 0, 64+len(msg))
	b = append(b, '<')
	b = strconv.AppendInt(b, int64(s.Facility<<3|severity), 10)
	b = append(b, '>')
	b = time.Now().AppendFormat(b, time.Stamp)
	b = append(b, ' ')
	b = append(b, s.hostname...)
	b = append(b, ' ')
	b = append(b, tag...)
	b = append(b, ':', ' ')
	b = append(b, msg...)
	_, err := s.conn.Write(b)
	return err
}

// Close closes the connection.
func (s *SyslogClient) Close() error {
	return s.conn.Close()
}
