// Package daemon implements the frpd daemon lifecycle.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"

	"github.com/psaab/frpd/pkg/cli"
	"github.com/psaab/frpd/pkg/config"
	"github.com/psaab/frpd/pkg/configstore"
	"github.com/psaab/frpd/pkg/dataplane"
	_ "github.com/psaab/frpd/pkg/dataplane/bpfmap"
	_ "github.com/psaab/frpd/pkg/dataplane/mmio"
	"github.com/psaab/frpd/pkg/frp"
	"github.com/psaab/frpd/pkg/logging"
	"github.com/psaab/frpd/pkg/metrics"
)

// Options configures the daemon.
type Options struct {
	ConfigFile  string
	DBDir       string       // rollback snapshots
	JournalFile string       // command journal; defaults to DBDir/journal.jsonl
	NoCLI       bool         // run without the interactive shell
	LogHandler  slog.Handler // base handler; syslog forwarding wraps it
}

// Daemon is the main frpd daemon. It owns the parser table and serializes
// every command submitted to it.
type Daemon struct {
	opts    Options
	store   *configstore.Store
	journal *configstore.Journal
	metrics *metrics.Metrics
	syslog  *logging.SyslogClient

	mu      sync.Mutex
	parser  config.ParserConfig
	backend dataplane.Backend
	mgr     *frp.Manager
	applied []frp.Rule // rules present in the table, in apply order
}

// New creates a Daemon, loads its configuration and opens the configured
// backend. The active rule set is not applied until Run or Sync.
func New(opts Options) (*Daemon, error) {
	if opts.ConfigFile == "" {
		opts.ConfigFile = "/etc/frpd/frpd.conf"
	}
	if opts.DBDir == "" {
		opts.DBDir = "/var/lib/frpd"
	}
	if opts.JournalFile == "" {
		opts.JournalFile = filepath.Join(opts.DBDir, "journal.jsonl")
	}
	if opts.LogHandler == nil {
		opts.LogHandler = slog.NewTextHandler(os.Stderr, nil)
	}

	db, err := configstore.NewDB(opts.DBDir)
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		opts:    opts,
		store:   configstore.New(opts.ConfigFile, db),
		journal: configstore.NewJournal(opts.JournalFile),
		metrics: metrics.New(),
	}

	if err := d.store.Load(); err != nil {
		slog.Warn("failed to load config, starting with empty config",
			"file", opts.ConfigFile, "err", err)
	} else {
		slog.Info("configuration loaded", "file", opts.ConfigFile)
	}

	cfg := d.activeConfig()
	if err := d.open(cfg.Parser); err != nil {
		return nil, err
	}
	return d, nil
}

// activeConfig returns the committed config, or the defaults before the
// first commit.
func (d *Daemon) activeConfig() *config.Config {
	if cfg := d.store.ActiveConfig(); cfg != nil {
		return cfg
	}
	cfg, _ := config.CompileConfig(&config.ConfigTree{})
	return cfg
}

func (d *Daemon) open(pc config.ParserConfig) error {
	backend, err := dataplane.Open(dataplane.Type(pc.Backend), dataplane.Options{
		Variant: pc.Variant,
		Device:  pc.Device,
		PinPath: pc.PinPath,
	})
	if err != nil {
		return err
	}
	d.parser = pc
	d.backend = backend
	d.mgr = frp.NewManager(d.metrics.Hardware(backend), pc.Variant)
	slog.Info("parser backend opened",
		"backend", backend.Name(), "variant", pc.Variant)
	return nil
}

// Store returns the configuration store.
func (d *Daemon) Store() *configstore.Store { return d.store }

// Metrics returns the daemon's metric set.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// Close releases the backend and the syslog connection.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.syslog != nil {
		d.syslog.Close()
	}
	return d.backend.Close()
}

// Run applies the active configuration, starts the metrics listener and
// the CLI, and blocks until the CLI exits or a shutdown signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting frpd daemon",
		"config", d.opts.ConfigFile,
		"pid", os.Getpid())

	cfg := d.activeConfig()
	d.setupSyslog(cfg.System)

	if err := d.Apply("startup", cfg.Rules); err != nil {
		slog.Warn("failed to apply active config", "err", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.System.MetricsListen != "" {
		go func() {
			if err := d.metrics.Serve(ctx, cfg.System.MetricsListen); err != nil {
				slog.Error("metrics listener failed", "err", err)
			}
		}()
	}

	if d.opts.NoCLI {
		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	}

	shell := cli.New(d.store, d.journal, d)

	// Run CLI in a goroutine so we can still handle signals
	errCh := make(chan error, 1)
	go func() {
		errCh <- shell.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("CLI: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	}
}

// setupSyslog tees the daemon log to the configured collector.
func (d *Daemon) setupSyslog(sys config.SystemConfig) {
	if sys.Syslog == nil {
		return
	}
	client, err := logging.NewSyslogClient(sys.Syslog.Host, sys.Syslog.Port, sys.HostName)
	if err != nil {
		slog.Warn("syslog disabled", "err", err)
		return
	}
	client.Facility = logging.ParseFacility(sys.Syslog.Facility)
	client.MinSeverity = logging.ParseSeverity(sys.Syslog.Severity)
	d.syslog = client
	slog.SetDefault(slog.New(logging.NewHandler(d.opts.LogHandler, client)))
	slog.Info("syslog forwarding enabled",
		"host", sys.Syslog.Host, "port", sys.Syslog.Port)
}

// Apply drives the table toward rules. Commands are planned against the
// rules already in the table and applied in order; the first failing
// command stops the run. Every command is journaled with its result.
func (d *Daemon) Apply(source string, rules []frp.Rule) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := frp.Plan(d.applied, rules)
	var err error
	for _, cmd := range cmds {
		err = d.mgr.Apply(cmd)
		d.metrics.ObserveCommand(cmd.Op, err)
		if jerr := d.journal.Record(source, cmd, err); jerr != nil {
			slog.Warn("failed to write journal", "err", jerr)
		}
		if err != nil {
			err = fmt.Errorf("%s rule %d: %w", cmd.Op, cmd.Rule.ID, err)
			break
		}
		d.applied = track(d.applied, cmd)
	}
	d.metrics.SetTable(d.mgr.Len(), d.mgr.InSync())

	if len(cmds) > 0 {
		slog.Info("parser table updated",
			"source", source, "commands", len(cmds),
			"rules", len(d.applied), "live", d.mgr.Len(), "err", err)
	}
	return err
}

// track returns the rule list after cmd succeeded.
func track(rules []frp.Rule, cmd frp.Command) []frp.Rule {
	i := slices.IndexFunc(rules, func(r frp.Rule) bool { return r.ID == cmd.Rule.ID })
	switch cmd.Op {
	case frp.OpAdd:
		return append(rules, cmd.Rule)
	case frp.OpUpdate:
		if i >= 0 {
			rules[i] = cmd.Rule
		}
	case frp.OpDelete:
		if i >= 0 {
			return slices.Delete(rules, i, i+1)
		}
	}
	return rules
}

// Rules returns the rules present in the table.
func (d *Daemon) Rules() []frp.Rule {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.applied)
}

// Resync rewrites the committed table to the backend.
func (d *Daemon) Resync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.mgr.Resync()
	if jerr := d.journal.Log(&configstore.JournalEntry{
		Source: "resync",
		Op:     "resync",
		RuleID: -1,
		Code:   frp.Code(err),
		Error:  errString(err),
	}); jerr != nil {
		slog.Warn("failed to write journal", "err", jerr)
	}
	d.metrics.SetTable(d.mgr.Len(), d.mgr.InSync())
	return err
}

// Dump writes the committed table in the per-slot dump format.
func (d *Daemon) Dump(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.Dump(w)
}

// Status reports the backend and table state.
func (d *Daemon) Status() dataplane.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return dataplane.Status{
		Backend: d.backend.Name(),
		Variant: d.mgr.Variant(),
		Rules:   len(d.applied),
		Live:    d.mgr.Len(),
		InSync:  d.mgr.InSync(),
	}
}

// ParserChanged reports whether pc differs from the settings the backend
// was opened with. Parser settings take effect on restart.
func (d *Daemon) ParserChanged(pc config.ParserConfig) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pc != d.parser
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
