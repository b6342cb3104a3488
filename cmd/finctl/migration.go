package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/MrJamesThe3rd/finsync/internal/app"
)

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "writes an encrypted bundle of the local dataset" }
func (*exportCmd) Usage() string {
	return `finctl export [-o <file>]

  Serializes accounts, transactions, contacts and documents into an encrypted
  bundle. The bundle can be imported on any device sharing the same key.

`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file. Writes to stdout by default.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		blob, err := a.Migration.Export(ctx)
		if err != nil {
			return err
		}

		if c.output == "" {
			_, err = os.Stdout.Write(blob)
			return err
		}

		if err := os.WriteFile(c.output, blob, 0o600); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Exported bundle to %s.\n", c.output)

		return nil
	})
}

type importCmd struct {
	input string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "replaces the local dataset with an encrypted bundle" }
func (*importCmd) Usage() string {
	return `finctl import [-i <file>]

  Decrypts and validates the bundle, backs up the current dataset and restores
  the bundle in its place. When a remote backend is configured the new dataset
  is pushed afterwards.

`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.input, "i", "", "Bundle file. Reads stdin by default.")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		var r io.Reader = os.Stdin

		if c.input != "" {
			f, err := os.Open(c.input)
			if err != nil {
				return err
			}
			defer f.Close()

			r = f
		}

		if err := a.Migration.Import(ctx, r); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Import completed.")

		if a.Sync == nil {
			return nil
		}

		return a.Sync.Push(ctx)
	})
}

type backupsCmd struct{}

func (*backupsCmd) Name() string             { return "backups" }
func (*backupsCmd) Synopsis() string         { return "lists backups taken before imports" }
func (*backupsCmd) Usage() string            { return "finctl backups\n\n" }
func (*backupsCmd) SetFlags(_ *flag.FlagSet) {}

func (*backupsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		backups, err := a.Migration.Backups(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tSIZE")

		for _, b := range backups {
			fmt.Fprintf(w, "%s\t%s\t%d\n", b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Size)
		}

		return w.Flush()
	})
}

type restoreCmd struct{}

func (*restoreCmd) Name() string             { return "restore" }
func (*restoreCmd) Synopsis() string         { return "restores a backup over the local dataset" }
func (*restoreCmd) Usage() string            { return "finctl restore <backup_name>\n\n" }
func (*restoreCmd) SetFlags(_ *flag.FlagSet) {}

func (*restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: restore takes exactly one backup name")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, args, func(a *app.App) error {
		return a.Migration.RestoreBackup(ctx, f.Arg(0))
	})
}

type resetCmd struct {
	confirm bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "deletes all local data except the device identity" }
func (*resetCmd) Usage() string {
	return `finctl reset -confirm

  Clears the local dataset along with notifications and backups. The device
  identity is kept.

`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.confirm, "confirm", false, "Required. Confirms the reset.")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if !c.confirm {
		fmt.Fprintln(os.Stderr, "Error: reset requires -confirm")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, args, func(a *app.App) error {
		if err := a.Ledger.Reset(ctx); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Local dataset cleared.")

		return nil
	})
}
