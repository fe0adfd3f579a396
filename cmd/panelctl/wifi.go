package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
)

func wifiCommand(ctx context.Context, a *app, args []string) int {
	name, rest, ok := a.subcommand("wifi", args)
	if !ok {
		return exitUsage
	}

	switch name {
	case "scan":
		if err := a.parseFlags(flag.NewFlagSet("wifi scan", flag.ContinueOnError), rest, 0, "wifi scan"); err != nil {
			return a.fail(err)
		}
		networks, err := a.client.ScanNetworks(ctx)
		if err != nil {
			return a.fail(err)
		}
		if len(networks) == 0 {
			fmt.Fprintln(a.out, "No networks found.")
			return exitOK
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SSID\tSIGNAL\tRSSI\tSECURITY")
		for _, n := range networks {
			security := "open"
			if n.Secured {
				security = "secured"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.SSID, n.Bars, n.RSSIDisplay, security)
		}
		tw.Flush()
		return exitOK

	case "status":
		if err := a.parseFlags(flag.NewFlagSet("wifi status", flag.ContinueOnError), rest, 0, "wifi status"); err != nil {
			return a.fail(err)
		}
		st, err := a.client.WifiStatus(ctx)
		if err != nil {
			return a.fail(err)
		}
		if !st.Connected {
			fmt.Fprintln(a.out, "Not connected.")
			return exitOK
		}
		fmt.Fprintf(a.out, "Connected to %s (%s)\n", st.SSID, st.IP)
		return exitOK

	case "connect":
		fs := flag.NewFlagSet("wifi connect", flag.ContinueOnError)
		ssid := fs.String("ssid", "", "network name")
		password := fs.String("password", "", "network password, empty for open networks")
		if err := a.parseFlags(fs, rest, 0, "wifi connect -ssid SSID [-password PASSWORD]"); err != nil {
			return a.fail(err)
		}
		resp, err := a.client.Connect(ctx, *ssid, *password)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "Connected to %s, IP %s\n", resp.SSID, resp.IP)
		return exitOK

	default:
		return a.unknownSubcommand("wifi", name)
	}
}
