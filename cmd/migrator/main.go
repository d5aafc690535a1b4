// Command migrator moves WooCommerce Subscriptions products and subscriptions into Sublium.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres"
	"github.com/kevin07696/subscription-migrator/internal/config"
	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/pkg/shutdown"
)

const version = "0.1.0"

var (
	flags      = flag.NewFlagSet("migrator", flag.ExitOnError)
	configPath = flags.String("config", "", "YAML configuration file (overrides MIGRATOR_CONFIG)")
	envFile    = flags.String("env-file", "", ".env file to load (overrides ENV_FILE)")
)

// errCommandFailed marks a command that ran but reported success=false
var errCommandFailed = errors.New("command failed")

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		os.Exit(2)
	}
	if *configPath != "" {
		_ = os.Setenv("MIGRATOR_CONFIG", *configPath)
	}
	if *envFile != "" {
		_ = os.Setenv("ENV_FILE", *envFile)
	}

	if err := run(args[0], args[1:]); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "migrator %s: %v\n", args[0], err)
		}
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if command == "db-migrate" {
		return runSchemaMigration(cfg, logger, args)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Debug("Running command", zap.String("command", command), zap.String("version", version))

	cmdCtx, cancel := a.timeouts.CommandContext(ctx)
	defer cancel()

	switch command {
	case "discover":
		return writeJSON(os.Stdout, a.orchestrator.Discover(cmdCtx))
	case "start-products":
		return writeResult(os.Stdout, a.orchestrator.StartProducts(cmdCtx))
	case "start-subscriptions":
		return writeResult(os.Stdout, a.orchestrator.StartSubscriptions(cmdCtx))
	case "pause":
		return writeResult(os.Stdout, a.orchestrator.Pause(cmdCtx))
	case "resume":
		return writeResult(os.Stdout, a.orchestrator.Resume(cmdCtx))
	case "cancel":
		return writeResult(os.Stdout, a.orchestrator.Cancel(cmdCtx))
	case "reset":
		return writeResult(os.Stdout, a.orchestrator.Reset(cmdCtx))
	case "status":
		view, err := a.orchestrator.Status(cmdCtx)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, view)
	case "errors":
		n, err := intArg(args, 0, 20)
		if err != nil {
			return err
		}
		entries, err := a.store.RecentErrors(cmdCtx, n)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, entries)
	case "cleanup":
		summary, err := a.cleanup.DisableSourceRenewals(ctx)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, summary)
	case "guard":
		return runGuard(cmdCtx, a, args)
	case "worker":
		return a.runWorker(ctx)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runGuard(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return errors.New("guard requires a subcommand: check ID | vetoes [LIMIT]")
	}
	switch args[0] {
	case "check":
		id, err := intArg(args, 1, 0)
		if err != nil || id <= 0 {
			return fmt.Errorf("guard check requires a positive subscription id")
		}
		return writeJSON(os.Stdout, map[string]interface{}{
			"subscription_id": id,
			"migrated":        a.guard.IsMigrated(ctx, int64(id)),
		})
	case "vetoes":
		limit, err := intArg(args, 1, 50)
		if err != nil {
			return err
		}
		vetoes, err := a.guard.RecentVetoes(ctx, limit)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, vetoes)
	default:
		return fmt.Errorf("unknown guard subcommand %q", args[0])
	}
}

func runSchemaMigration(cfg *config.Config, logger *zap.Logger, args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	migrator, err := postgres.NewMigrator(cfg.Target.ConnectionString(), logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown db-migrate direction %q", direction)
	}

	v, err := migrator.Version()
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, v)
}

// intArg parses args[i] as an int, returning def when absent
func intArg(args []string, i, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return n, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints a command result and turns success=false into errCommandFailed
func writeResult(w io.Writer, result domain.CommandResult) error {
	if err := writeJSON(w, result); err != nil {
		return err
	}
	if !result.Success {
		return errCommandFailed
	}
	return nil
}

func usage() {
	fmt.Print(`Usage: migrator [-config FILE] [-env-file FILE] COMMAND [ARGS]

Commands:
    discover               Report source and target readiness as JSON
    start-products         Start the products migration pipeline
    start-subscriptions    Start the subscriptions migration pipeline
    status                 Print migration state and progress percentages
    pause                  Pause the running pipeline
    resume                 Resume a paused pipeline
    cancel                 Cancel the migration and reset its state
    reset                  Reset migration state to defaults
    errors [N]             Print the N most recent migration errors (default 20)
    worker                 Consume batch jobs until interrupted
    cleanup                Disable source renewals of migrated subscriptions
    guard check ID         Report whether a source subscription is migrated
    guard vetoes [LIMIT]   Print recently vetoed renewals (default 50)
    db-migrate [up|down|version]
                           Apply, roll back or inspect the target schema

Examples:
    migrator discover
    migrator -config migrator.yaml worker
    migrator db-migrate up
`)
}
