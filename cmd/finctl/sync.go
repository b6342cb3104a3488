package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/MrJamesThe3rd/finsync/internal/app"
)

type devicesCmd struct{}

func (*devicesCmd) Name() string             { return "devices" }
func (*devicesCmd) Synopsis() string         { return "lists devices registered with the remote store" }
func (*devicesCmd) Usage() string            { return "finctl devices\n\n" }
func (*devicesCmd) SetFlags(_ *flag.FlagSet) {}

func (*devicesCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		if a.Remote == nil {
			return errNoRemote
		}

		devices, err := a.Remote.Devices(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tREGISTERED\tLAST ACTIVE\t")

		for _, d := range devices {
			marker := ""
			if d.ID == a.DeviceID {
				marker = "(this device)"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID,
				d.RegisteredAt.Local().Format("2006-01-02 15:04"),
				d.LastActive.Local().Format("2006-01-02 15:04"),
				marker)
		}

		return w.Flush()
	})
}

type pushCmd struct{}

func (*pushCmd) Name() string             { return "push" }
func (*pushCmd) Synopsis() string         { return "writes the local dataset to this device's remote document" }
func (*pushCmd) Usage() string            { return "finctl push\n\n" }
func (*pushCmd) SetFlags(_ *flag.FlagSet) {}

func (*pushCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		if a.Sync == nil {
			return errNoRemote
		}

		return a.Sync.Push(ctx)
	})
}

type requestSyncCmd struct{}

func (*requestSyncCmd) Name() string { return "request-sync" }
func (*requestSyncCmd) Synopsis() string {
	return "sends the local dataset to another device"
}
func (*requestSyncCmd) Usage() string {
	return `finctl request-sync <device_id>

  Writes the local dataset into the target device's document. The target
  applies it when it is newer than its own data.

`
}
func (*requestSyncCmd) SetFlags(_ *flag.FlagSet) {}

func (*requestSyncCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: request-sync takes exactly one device id")
		return subcommands.ExitUsageError
	}

	return withApp(ctx, args, func(a *app.App) error {
		if a.Sync == nil {
			return errNoRemote
		}

		if err := a.Sync.RequestSync(ctx, f.Arg(0)); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Dataset sent to %s.\n", f.Arg(0))

		return nil
	})
}
