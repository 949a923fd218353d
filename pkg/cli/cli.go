// Package cli implements the Junos-style interactive CLI for frpd.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/psaab/frpd/pkg/config"
	"github.com/psaab/frpd/pkg/configstore"
	"github.com/psaab/frpd/pkg/dataplane"
	"github.com/psaab/frpd/pkg/frp"
)

// Parser is the table the CLI inspects and drives.
type Parser interface {
	Apply(source string, rules []frp.Rule) error
	Rules() []frp.Rule
	Resync() error
	Dump(w io.Writer) error
	Status() dataplane.Status
	ParserChanged(pc config.ParserConfig) bool
}

// CLI is the interactive command-line interface.
type CLI struct {
	rl       *readline.Instance
	out      io.Writer
	store    *configstore.Store
	journal  *configstore.Journal
	parser   Parser
	hostname string
	username string
}

// New creates a new CLI. journal and parser may be nil.
func New(store *configstore.Store, journal *configstore.Journal, parser Parser) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "frpd"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}

	return &CLI{
		out:      os.Stdout,
		store:    store,
		journal:  journal,
		parser:   parser,
		hostname: hostname,
		username: username,
	}
}

// Run starts the interactive CLI loop.
func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.operationalPrompt(),
		HistoryFile:     "/tmp/frpd_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()

	fmt.Fprintln(c.out, "frpd - flexible receive parser control")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return nil
}

var errExit = errors.New("exit")

func (c *CLI) dispatch(line string) error {
	if c.store.InConfigMode() {
		return c.dispatchConfig(line)
	}
	return c.dispatchOperational(line)
}

func (c *CLI) setPrompt(p string) {
	if c.rl != nil {
		c.rl.SetPrompt(p)
	}
}

func (c *CLI) dispatchOperational(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "configure":
		c.store.EnterConfigure()
		c.setPrompt(c.configPrompt())
		fmt.Fprintln(c.out, "Entering configuration mode")
		return nil

	case "show":
		return c.handleShow(parts[1:])

	case "request":
		return c.handleRequest(parts[1:])

	case "quit", "exit":
		return errExit

	case "?", "help":
		c.showOperationalHelp()
		return nil

	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *CLI) dispatchConfig(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "set":
		if len(parts) < 2 {
			return fmt.Errorf("set: missing path")
		}
		return c.store.SetFromInput(strings.Join(parts[1:], " "))

	case "delete":
		if len(parts) < 2 {
			return fmt.Errorf("delete: missing path")
		}
		return c.store.DeleteFromInput(strings.Join(parts[1:], " "))

	case "show":
		return c.handleConfigShow(parts[1:])

	case "commit":
		return c.handleCommit(parts[1:])

	case "rollback":
		n := 0
		if len(parts) >= 2 {
			var err error
			if n, err = strconv.Atoi(parts[1]); err != nil || n < 0 {
				return fmt.Errorf("rollback: invalid index %q", parts[1])
			}
		}
		if err := c.store.Rollback(n); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "load complete")
		return nil

	case "run":
		if len(parts) < 2 {
			return fmt.Errorf("run: missing command")
		}
		return c.dispatchOperational(strings.Join(parts[1:], " "))

	case "exit", "quit":
		if c.store.IsDirty() {
			fmt.Fprintln(c.out, "warning: uncommitted changes will be discarded")
		}
		c.store.ExitConfigure()
		c.setPrompt(c.operationalPrompt())
		fmt.Fprintln(c.out, "Exiting configuration mode")
		return nil

	case "?", "help":
		c.showConfigHelp()
		return nil

	default:
		return fmt.Errorf("unknown command: %s (in configuration mode)", parts[0])
	}
}

func (c *CLI) handleShow(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "show: specify what to show")
		fmt.Fprintln(c.out, "  configuration    Show active configuration")
		fmt.Fprintln(c.out, "  frp              Show parser table information")
		fmt.Fprintln(c.out, "  system commit    Show commit history")
		return nil
	}

	switch args[0] {
	case "configuration":
		fmt.Fprint(c.out, c.store.ShowActive())
		return nil

	case "frp":
		return c.handleShowFRP(args[1:])

	case "system":
		if len(args) >= 2 && args[1] == "commit" {
			c.showCommits()
			return nil
		}
		return fmt.Errorf("unknown show system target")

	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

func (c *CLI) handleShowFRP(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "show frp:")
		fmt.Fprintln(c.out, "  status           Show backend and table state")
		fmt.Fprintln(c.out, "  table            Show programmed instruction slots")
		fmt.Fprintln(c.out, "  rules            Show rules present in the table")
		fmt.Fprintln(c.out, "  journal [n]      Show the last n table commands")
		return nil
	}
	if args[0] != "journal" && c.parser == nil {
		fmt.Fprintln(c.out, "parser not available")
		return nil
	}

	switch args[0] {
	case "status":
		st := c.parser.Status()
		fmt.Fprintf(c.out, "Backend: %s\n", st.Backend)
		fmt.Fprintf(c.out, "Variant: %s\n", st.Variant)
		fmt.Fprintf(c.out, "Rules: %d\n", st.Rules)
		fmt.Fprintf(c.out, "Slots: %d/%d (catch-all excluded)\n", st.Live, frp.MaxEntries-1)
		fmt.Fprintf(c.out, "In sync: %v\n", st.InSync)
		return nil

	case "table":
		return c.parser.Dump(c.out)

	case "rules":
		c.showRules(c.parser.Rules())
		return nil

	case "journal":
		limit := 20
		if len(args) >= 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("show frp journal: invalid count %q", args[1])
			}
			limit = n
		}
		return c.showJournal(limit)

	default:
		return fmt.Errorf("unknown show frp target: %s", args[0])
	}
}

func (c *CLI) showRules(rules []frp.Rule) {
	tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMATCH-TYPE\tMATCH\tOFFSET\tACTION\tLINK-TO\tDMA\tSLOTS")
	for _, r := range rules {
		link := "-"
		if r.Mode.IsLink() {
			link = strconv.Itoa(int(r.LinkID))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t0x%x\t%d\n",
			r.ID, r.Kind, config.FormatMatch(r.Match), r.Offset, r.Mode,
			link, r.DMAChannels, r.Footprint())
	}
	tw.Flush()
}

func (c *CLI) showJournal(limit int) error {
	if c.journal == nil {
		fmt.Fprintln(c.out, "journal not available")
		return nil
	}
	entries, err := c.journal.ListEntries(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no journal entries")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(c.out, "%s %-8s %-7s rule %-5d code %d",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Source, e.Op, e.RuleID, e.Code)
		if e.Error != "" {
			fmt.Fprintf(c.out, " (%s)", e.Error)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *CLI) showCommits() {
	history := c.store.History()
	if len(history) == 0 {
		fmt.Fprintln(c.out, "no commit history")
		return
	}
	for n, rev := range history {
		fmt.Fprintf(c.out, "%-3d %s  %d rules", n, rev.Timestamp.Format("2006-01-02 15:04:05 MST"), rev.Rules)
		if rev.Comment != "" {
			fmt.Fprintf(c.out, "  %s", rev.Comment)
		}
		fmt.Fprintln(c.out)
	}
}

func (c *CLI) handleRequest(args []string) error {
	if len(args) == 2 && args[0] == "frp" && args[1] == "resync" {
		if c.parser == nil {
			return fmt.Errorf("parser not available")
		}
		if err := c.parser.Resync(); err != nil {
			return fmt.Errorf("resync failed: %w", err)
		}
		fmt.Fprintln(c.out, "parser table rewritten")
		return nil
	}
	return fmt.Errorf("unknown request: %s", strings.Join(args, " "))
}

func (c *CLI) handleConfigShow(args []string) error {
	// Check for pipe commands
	line := strings.Join(args, " ")

	if strings.Contains(line, "| display set") {
		fmt.Fprint(c.out, c.store.ShowCandidateSet())
		return nil
	}

	fmt.Fprint(c.out, c.store.ShowCandidate())
	return nil
}

func (c *CLI) handleCommit(args []string) error {
	if len(args) > 0 && args[0] == "check" {
		_, err := c.store.CommitCheck()
		if err != nil {
			return fmt.Errorf("commit check failed: %w", err)
		}
		fmt.Fprintln(c.out, "configuration check succeeds")
		return nil
	}

	var comment string
	if len(args) >= 2 && args[0] == "comment" {
		comment = strings.Trim(strings.Join(args[1:], " "), `"`)
	}

	compiled, err := c.store.Commit(comment)
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	if c.parser != nil {
		if c.parser.ParserChanged(compiled.Parser) {
			fmt.Fprintln(c.out, "warning: parser settings take effect after restart")
		}
		if err := c.parser.Apply("commit", compiled.Rules); err != nil {
			fmt.Fprintf(c.out, "warning: parser apply failed: %v (code %d)\n", err, frp.Code(err))
		}
	}

	fmt.Fprintln(c.out, "commit complete")
	return nil
}

func (c *CLI) operationalPrompt() string {
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

func (c *CLI) configPrompt() string {
	return fmt.Sprintf("[edit]\n%s@%s# ", c.username, c.hostname)
}

func (c *CLI) showOperationalHelp() {
	fmt.Fprintln(c.out, "Operational mode commands:")
	fmt.Fprintln(c.out, "  configure            Enter configuration mode")
	fmt.Fprintln(c.out, "  show configuration   Show running configuration")
	fmt.Fprintln(c.out, "  show frp status      Show backend and table state")
	fmt.Fprintln(c.out, "  show frp table       Show programmed instruction slots")
	fmt.Fprintln(c.out, "  show frp rules       Show rules present in the table")
	fmt.Fprintln(c.out, "  show frp journal [n] Show recent table commands")
	fmt.Fprintln(c.out, "  show system commit   Show commit history")
	fmt.Fprintln(c.out, "  request frp resync   Rewrite the table to hardware")
	fmt.Fprintln(c.out, "  quit                 Exit CLI")
}

func (c *CLI) showConfigHelp() {
	fmt.Fprintln(c.out, "Configuration mode commands:")
	fmt.Fprintln(c.out, "  set <path>           Set a configuration value")
	fmt.Fprintln(c.out, "  delete <path>        Delete a configuration element")
	fmt.Fprintln(c.out, "  show                 Show candidate configuration")
	fmt.Fprintln(c.out, "  show | display set   Show as flat set commands")
	fmt.Fprintln(c.out, "  commit               Validate and apply configuration")
	fmt.Fprintln(c.out, "  commit check         Validate without applying")
	fmt.Fprintln(c.out, "  commit comment <txt> Commit with a history comment")
	fmt.Fprintln(c.out, "  rollback [n]         Revert to previous configuration")
	fmt.Fprintln(c.out, "  run <cmd>            Run operational command")
	fmt.Fprintln(c.out, "  exit                 Exit configuration mode")
}
