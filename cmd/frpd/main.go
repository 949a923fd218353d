// Command frpd programs the Flexible Receive Parser instruction table of a
// MAC from a Junos-style configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/psaab/frpd/pkg/config"
	"github.com/psaab/frpd/pkg/configstore"
	"github.com/psaab/frpd/pkg/daemon"
	"github.com/psaab/frpd/pkg/dataplane"
	"github.com/psaab/frpd/pkg/frp"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile string
	dbDir      string
	debug      bool
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "frpd",
		Short:        "Flexible Receive Parser table daemon",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(logHandler(cmd.ErrOrStderr(), level)))
		},
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "f", "/etc/frpd/frpd.conf", "configuration file")
	root.PersistentFlags().StringVar(&g.dbDir, "db-dir", "/var/lib/frpd", "rollback and journal directory")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "log every table command")

	root.AddCommand(newRunCommand(g), newCheckCommand(g), newImportCommand(g))
	return root
}

func logHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		noCLI   bool
		journal string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon and its interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New(daemon.Options{
				ConfigFile:  g.configFile,
				DBDir:       g.dbDir,
				JournalFile: journal,
				NoCLI:       noCLI,
				LogHandler:  slog.Default().Handler(),
			})
			if err != nil {
				return err
			}
			defer d.Close()
			return d.Run(context.Background())
		},
	}
	cmd.Flags().BoolVar(&noCLI, "no-cli", false, "run without the interactive shell")
	cmd.Flags().StringVar(&journal, "journal", "", "command journal file (default <db-dir>/journal.jsonl)")
	return cmd
}

func newCheckCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a configuration and compile its rules into a scratch table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configFile
			if len(args) == 1 {
				path = args[0]
			}
			return checkConfig(cmd.OutOrStdout(), path)
		},
	}
}

// checkConfig compiles the configuration at path and applies its rule set
// to an in-memory parser, reporting the slots it would occupy.
func checkConfig(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tree, errs := config.NewParser(string(data)).Parse()
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", path, errs[0])
	}
	cfg, err := config.CompileConfig(tree)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	m := frp.NewManager(dataplane.NewMemory(cfg.Parser.Variant), cfg.Parser.Variant)
	for _, c := range frp.Plan(nil, cfg.Rules) {
		if err := m.Apply(c); err != nil {
			return fmt.Errorf("rule %d: %w (code %d)", c.Rule.ID, err, frp.Code(err))
		}
	}
	fmt.Fprintf(w, "configuration check succeeds: %d rules, %d of %d slots (%s)\n",
		len(cfg.Rules), m.Len(), frp.MaxEntries-1, cfg.Parser.Variant)
	return nil
}

func newImportCommand(g *globalFlags) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "import <rules.yaml>",
		Short: "Replace the configured rule set with rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if comment == "" {
				comment = "import " + args[0]
			}
			n, err := importRules(g.configFile, g.dbDir, args[0], comment)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules; restart the daemon or commit to apply\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "commit comment")
	return cmd
}

// importRules commits the rules in yamlPath as the rule set of the
// configuration at configFile, replacing any rules configured there.
func importRules(configFile, dbDir, yamlPath, comment string) (int, error) {
	rules, err := config.LoadRulesYAML(yamlPath)
	if err != nil {
		return 0, err
	}
	db, err := configstore.NewDB(dbDir)
	if err != nil {
		return 0, err
	}
	store := configstore.New(configFile, db)
	if err := store.Load(); err != nil {
		return 0, err
	}

	store.EnterConfigure()
	defer store.ExitConfigure()
	if err := store.ReplaceRules(rules); err != nil {
		return 0, err
	}
	if _, err := store.Commit(comment); err != nil {
		return 0, err
	}
	return len(rules), nil
}
