package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/lgulliver/panelctl/pkg/types"
	"github.com/lgulliver/panelctl/pkg/utils"
)

func ntpCommand(ctx context.Context, a *app, args []string) int {
	name, rest, ok := a.subcommand("ntp", args)
	if !ok {
		return exitUsage
	}

	switch name {
	case "status", "sync":
		if err := a.parseFlags(flag.NewFlagSet("ntp "+name, flag.ContinueOnError), rest, 0, "ntp "+name); err != nil {
			return a.fail(err)
		}
		var (
			st  *types.NTPStatus
			err error
		)
		if name == "sync" {
			st, err = a.client.SyncNTP(ctx)
		} else {
			st, err = a.client.NTPStatus(ctx)
		}
		if err != nil {
			return a.fail(err)
		}
		printNTPStatus(a, st)
		if name == "sync" && !st.LastOK {
			return exitFailure
		}
		return exitOK

	case "get":
		if err := a.parseFlags(flag.NewFlagSet("ntp get", flag.ContinueOnError), rest, 0, "ntp get"); err != nil {
			return a.fail(err)
		}
		cfg, err := a.client.NTPConfig(ctx)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, cfg.NTPServer)
		return exitOK

	case "set":
		fs := flag.NewFlagSet("ntp set", flag.ContinueOnError)
		if err := a.parseFlags(fs, rest, 1, "ntp set SERVER"); err != nil {
			return a.fail(err)
		}
		if err := a.client.SetNTPServer(ctx, fs.Arg(0)); err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, "NTP server saved.")
		return exitOK

	default:
		return a.unknownSubcommand("ntp", name)
	}
}

func printNTPStatus(a *app, st *types.NTPStatus) {
	result := "failed"
	if st.LastOK {
		result = "ok"
	}
	fmt.Fprintf(a.out, "Last sync: %s\n", result)
	if st.LastStatus != "" {
		fmt.Fprintf(a.out, "Status:    %s\n", st.LastStatus)
	}
	fmt.Fprintf(a.out, "Synced at: %s\n", utils.FormatSyncTime(st.LastSyncTime))
}
