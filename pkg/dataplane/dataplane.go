package dataplane

import (
	"fmt"
	"slices"
	"sync"

	"github.com/psaab/frpd/pkg/frp"
)

// Type names a backend implementation.
type Type string

const (
	TypeMMIO   Type = "mmio"
	TypeBPF    Type = "bpf"
	TypeMemory Type = "memory"
)

// Options selects the device a backend opens.
type Options struct {
	Variant frp.Variant
	Device  string // register resource file for mmio
	PinPath string // bpffs directory for bpf
}

// Backend is a parser programming target.
type Backend interface {
	frp.Hardware
	Name() string
	Close() error
}

// Factory opens a backend.
type Factory func(Options) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[Type]Factory)
)

// RegisterBackend makes a backend available to Open. Backends register
// from init, so a duplicate registration is a programming error.
func RegisterBackend(t Type, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[t]; dup {
		panic(fmt.Sprintf("dataplane: backend %q registered twice", t))
	}
	backends[t] = f
}

// Open opens a backend of type t.
func Open(t Type, opts Options) (Backend, error) {
	backendsMu.RLock()
	f, ok := backends[t]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dataplane backend %q (have %v)", t, Types())
	}
	b, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", t, err)
	}
	return b, nil
}

// Types lists the registered backend types.
func Types() []Type {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]Type, 0, len(backends))
	for t := range backends {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Status summarizes the table a backend is programmed with.
type Status struct {
	Backend string      `json:"backend"`
	Variant frp.Variant `json:"variant"`
	Rules   int         `json:"rules"`
	Live    int         `json:"live"`
	InSync  bool        `json:"in_sync"`
}
