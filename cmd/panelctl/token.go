package main

import (
	"context"
	"flag"
	"fmt"

	tokengen "github.com/lgulliver/panelctl/pkg/auth"
)

func tokenCommand(ctx context.Context, a *app, args []string) int {
	name, rest, ok := a.subcommand("token", args)
	if !ok {
		return exitUsage
	}

	switch name {
	case "show":
		if err := a.parseFlags(flag.NewFlagSet("token show", flag.ContinueOnError), rest, 0, "token show"); err != nil {
			return a.fail(err)
		}
		msg, err := a.tokens.Init()
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, msg)
		if a.tokens.HasToken() {
			fmt.Fprintln(a.out, a.tokens.Token())
		}
		return exitOK

	case "save", "change":
		fs := flag.NewFlagSet("token "+name, flag.ContinueOnError)
		if err := a.parseFlags(fs, rest, 1, "token "+name+" TOKEN"); err != nil {
			return a.fail(err)
		}
		var (
			msg string
			err error
		)
		if name == "save" {
			msg, err = a.tokens.Save(ctx, fs.Arg(0))
		} else {
			msg, err = a.tokens.Change(ctx, fs.Arg(0))
		}
		if err != nil {
			return a.fail(err)
		}
		a.client.SetToken(a.tokens.Token())
		fmt.Fprintln(a.out, msg)
		return exitOK

	case "generate":
		fs := flag.NewFlagSet("token generate", flag.ContinueOnError)
		change := fs.Bool("change", false, "replace the stored device token with the generated one")
		if err := a.parseFlags(fs, rest, 0, "token generate [-change]"); err != nil {
			return a.fail(err)
		}
		token, err := tokengen.GenerateToken()
		if err != nil {
			return a.fail(err)
		}
		if !*change {
			fmt.Fprintln(a.out, token)
			return exitOK
		}
		msg, err := a.tokens.Change(ctx, token)
		if err != nil {
			return a.fail(err)
		}
		a.client.SetToken(a.tokens.Token())
		fmt.Fprintln(a.out, msg)
		fmt.Fprintln(a.out, token)
		return exitOK

	case "clear":
		if err := a.parseFlags(flag.NewFlagSet("token clear", flag.ContinueOnError), rest, 0, "token clear"); err != nil {
			return a.fail(err)
		}
		msg, err := a.tokens.Clear()
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, msg)
		return exitOK

	default:
		return a.unknownSubcommand("token", name)
	}
}
