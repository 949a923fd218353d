package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler tees slog records to a syslog client. Records are always passed
// to the wrapped handler; those passing the client's severity filter are
// also sent to the collector as "msg key=value ...".
type Handler struct {
	next   slog.Handler
	client *SyslogClient
	attrs  []slog.Attr
	group  string
}

// NewHandler wraps next so that records are also forwarded to client.
func NewHandler(next slog.Handler, client *SyslogClient) *Handler {
	return &Handler{next: next, client: client}
}

// Severity maps an slog level to the RFC 3164 severity.
func Severity(l slog.Level) int {
	switch {
	case l >= slog.LevelError:
		return SyslogError
	case l >= slog.LevelWarn:
		return SyslogWarning
	case l >= slog.LevelInfo:
		return SyslogInfo
	default:
		return SyslogDebug
	}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l) || h.client.ShouldSend(Severity(l))
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	sev := Severity(r.Level)
	if !h.client.ShouldSend(sev) {
		return err
	}

	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	if serr := h.client.Send(sev, b.String()); serr != nil && err == nil {
		err = fmt.Errorf("syslog: %w", serr)
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.next = h.next.WithAttrs(attrs)
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.next = h.next.WithGroup(name)
	if h.group != "" {
		nh.group = h.group + "." + name
	} else {
		nh.group = name
	}
	return &nh
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}
