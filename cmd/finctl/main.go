// Command finctl administers the local dataset of a device: bundles, backups,
// the remote device registry and API tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/finsync/internal/app"
	"github.com/MrJamesThe3rd/finsync/internal/config"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&exportCmd{}, "migration")
	commander.Register(&importCmd{}, "migration")
	commander.Register(&backupsCmd{}, "migration")
	commander.Register(&restoreCmd{}, "migration")
	commander.Register(&resetCmd{}, "migration")

	commander.Register(&devicesCmd{}, "sync")
	commander.Register(&pushCmd{}, "sync")
	commander.Register(&requestSyncCmd{}, "sync")

	commander.Register(&tokenCmd{}, "auth")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}

	os.Exit(int(commander.Execute(context.Background(), cfg)))
}

// withApp opens the device services for the duration of fn.
func withApp(ctx context.Context, args []any, fn func(*app.App) error) subcommands.ExitStatus {
	cfg, ok := args[0].(*config.Config)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: missing configuration")
		return subcommands.ExitFailure
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open device: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

var errNoRemote = errors.New("no remote backend configured, set REMOTE_BACKEND")
