package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lgulliver/panelctl/pkg/utils"
)

func gifCommand(ctx context.Context, a *app, args []string) int {
	name, rest, ok := a.subcommand("gif", args)
	if !ok {
		return exitUsage
	}

	switch name {
	case "list":
		if err := a.parseFlags(flag.NewFlagSet("gif list", flag.ContinueOnError), rest, 0, "gif list"); err != nil {
			return a.fail(err)
		}
		list, err := a.client.ListGIFs(ctx)
		if err != nil {
			return a.fail(err)
		}
		if len(list.Files) == 0 {
			fmt.Fprintln(a.out, "No GIFs stored.")
		} else {
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE")
			for _, f := range list.Files {
				fmt.Fprintf(tw, "%s\t%s\n", f.Name, utils.HumanFileSize(f.Size))
			}
			tw.Flush()
		}
		fmt.Fprintf(a.out, "Used %s of %s (%s free)\n",
			utils.HumanFileSize(list.UsedBytes), utils.HumanFileSize(list.TotalBytes), utils.HumanFileSize(list.FreeBytes))
		return exitOK

	case "upload":
		fs := flag.NewFlagSet("gif upload", flag.ContinueOnError)
		if err := a.parseFlags(fs, rest, 1, "gif upload FILE"); err != nil {
			return a.fail(err)
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return a.fail(err)
		}
		defer f.Close()

		resp, err := a.client.UploadGIF(ctx, fs.Arg(0), f)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "%s: %s\n", resp.Filename, resp.Message)
		return exitOK

	case "delete", "play":
		fs := flag.NewFlagSet("gif "+name, flag.ContinueOnError)
		if err := a.parseFlags(fs, rest, 1, "gif "+name+" NAME"); err != nil {
			return a.fail(err)
		}
		if name == "delete" {
			if err := a.client.DeleteGIF(ctx, fs.Arg(0)); err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "Deleted %s\n", fs.Arg(0))
			return exitOK
		}
		resp, err := a.client.PlayGIF(ctx, fs.Arg(0))
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "Playing %s\n", resp.File)
		return exitOK

	case "stop":
		if err := a.parseFlags(flag.NewFlagSet("gif stop", flag.ContinueOnError), rest, 0, "gif stop"); err != nil {
			return a.fail(err)
		}
		if err := a.client.StopGIF(ctx); err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, "Playback stopped.")
		return exitOK

	default:
		return a.unknownSubcommand("gif", name)
	}
}
