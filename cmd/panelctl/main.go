package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/lgulliver/panelctl/internal/auth"
	"github.com/lgulliver/panelctl/internal/common"
	"github.com/lgulliver/panelctl/internal/device"
	"github.com/lgulliver/panelctl/internal/history"
	"github.com/lgulliver/panelctl/pkg/config"
	"github.com/rs/zerolog/log"
)

// Exit codes
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is the state shared by all commands of one invocation
type app struct {
	cfg    *config.Config
	client *device.Client
	tokens *auth.Service
	out    io.Writer
	errOut io.Writer
}

type command func(ctx context.Context, a *app, args []string) int

var commands = map[string]command{
	"ota":    otaCommand,
	"wifi":   wifiCommand,
	"ntp":    ntpCommand,
	"gif":    gifCommand,
	"token":  tokenCommand,
	"reboot": rebootCommand,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(os.Getenv("PANEL_CONFIG"))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}

	flags := flag.NewFlagSet("panelctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cfg.Device.BaseURL, "device", cfg.Device.BaseURL, "device base URL")
	flags.StringVar(&cfg.Client.TokenFile, "token-file", cfg.Client.TokenFile, "file holding the device token")
	flags.DurationVar(&cfg.Device.Timeout, "timeout", cfg.Device.Timeout, "timeout for non-upload requests")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level (debug, info, warn, error)")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg.Logging.SetupLogging()

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stderr, flags)
		return exitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		printUsage(stderr, flags)
		return exitUsage
	}

	client := device.NewClient(cfg.Device.BaseURL, device.WithTimeout(cfg.Device.Timeout))
	tokens := auth.NewService(auth.NewTokenStore(cfg.Client.TokenFile), client)
	msg, err := tokens.Init()
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Client.TokenFile).Msg("failed to load token")
	} else {
		log.Debug().Str("path", cfg.Client.TokenFile).Msg(msg)
	}
	client.SetToken(tokens.Token())

	a := &app{
		cfg:    cfg,
		client: client,
		tokens: tokens,
		out:    stdout,
		errOut: stderr,
	}
	return cmd(ctx, a, rest[1:])
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: panelctl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commandHelp[name])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	flags.PrintDefaults()
}

var commandHelp = map[string]string{
	"ota":    "upload | cancel | status | history",
	"wifi":   "scan | status | connect",
	"ntp":    "status | sync | get | set",
	"gif":    "list | upload | delete | play | stop",
	"token":  "show | save | change | generate | clear",
	"reboot": "restart the device",
}

// fail reports err and maps it to an exit code
func (a *app) fail(err error) int {
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	fmt.Fprintf(a.errOut, "error: %v\n", err)
	return exitFailure
}

// subcommand splits args into a subcommand name and its arguments
func (a *app) subcommand(group string, args []string) (string, []string, bool) {
	if len(args) == 0 {
		fmt.Fprintf(a.errOut, "usage: panelctl %s %s\n", group, commandHelp[group])
		return "", nil, false
	}
	return args[0], args[1:], true
}

func (a *app) unknownSubcommand(group, name string) int {
	fmt.Fprintf(a.errOut, "unknown %s command %q (want %s)\n", group, name, commandHelp[group])
	return exitUsage
}

// parseFlags parses a subcommand flag set and checks the positional count
func (a *app) parseFlags(fs *flag.FlagSet, args []string, positional int, usage string) error {
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprintf(a.errOut, "usage: panelctl %s\n", usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != positional {
		fs.Usage()
		return errUsage
	}
	return nil
}

// openHistory opens the upload history database
func (a *app) openHistory() (*history.Service, func(), error) {
	db, err := common.NewDatabase(&a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc, err := history.NewService(db, a.client.BaseURL())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, func() { db.Close() }, nil
}

func rebootCommand(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("reboot", flag.ContinueOnError)
	if err := a.parseFlags(fs, args, 0, "reboot"); err != nil {
		return a.fail(err)
	}
	if err := a.client.Reboot(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Device is rebooting.")
	return exitOK
}
