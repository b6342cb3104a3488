package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/MrJamesThe3rd/finsync/internal/app"
	"github.com/MrJamesThe3rd/finsync/internal/config"
	"github.com/MrJamesThe3rd/finsync/internal/http/auth"
)

type tokenCmd struct{}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issues an API bearer token for this device" }
func (*tokenCmd) Usage() string {
	return `finctl token

  Prints a token signed with JWT_SECRET. It is valid for TOKEN_TTL.

`
}
func (*tokenCmd) SetFlags(_ *flag.FlagSet) {}

func (*tokenCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *app.App) error {
		cfg := args[0].(*config.Config)
		if cfg.Security.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}

		token, err := auth.New(cfg.Security.JWTSecret, cfg.Security.TokenTTL).Issue(a.DeviceID)
		if err != nil {
			return err
		}

		fmt.Println(token)

		return nil
	})
}
