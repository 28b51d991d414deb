// Command rotactl is the operator CLI: it draws cards, prints programmes,
// audits the history and manages background jobs against the same store the
// server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/novacriatura/rota/internal/app"
)

// buildFunc opens the services for one command run.
type buildFunc func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*app.Services, error)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	build  buildFunc

	jsonOutput bool
	debug      bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		build: func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*app.Services, error) {
			return app.Build(ctx, cfg, logger, app.BuildOptions{Enqueue: true})
		},
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rotactl",
		Short:         "Operate the meeting card rota",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print machine readable JSON")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		c.allocateCommand(),
		c.scheduleCommand(),
		c.historyCommand(),
		c.resetCommand(),
		c.auditCommand(),
		c.catalogCommand(),
		c.jobsCommand(),
	)
	return root
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}

// withServices loads configuration, builds the services and runs fn.
func (c *cli) withServices(ctx context.Context, fn func(cfg *app.Config, svc *app.Services) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := c.build(ctx, cfg, c.logger())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(cfg, svc)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if app.InTestMode() {
		return
	}
	c := newCLI(os.Stdout, os.Stderr)
	if err := c.rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
