package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/lgulliver/panelctl/internal/history"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/lgulliver/panelctl/pkg/utils"
	"github.com/rs/zerolog/log"
)

func otaCommand(ctx context.Context, a *app, args []string) int {
	name, rest, ok := a.subcommand("ota", args)
	if !ok {
		return exitUsage
	}

	switch name {
	case "upload":
		return otaUpload(ctx, a, rest)
	case "cancel":
		if err := a.parseFlags(flag.NewFlagSet("ota cancel", flag.ContinueOnError), rest, 0, "ota cancel"); err != nil {
			return a.fail(err)
		}
		if err := a.client.CancelUpload(ctx); err != nil {
			return a.fail(err)
		}
		fmt.Fprintln(a.out, "Cancel requested.")
		return exitOK
	case "status":
		return otaStatus(ctx, a, rest)
	case "history":
		return otaHistory(ctx, a, rest)
	default:
		return a.unknownSubcommand("ota", name)
	}
}

func otaUpload(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("ota upload", flag.ContinueOnError)
	targetName := fs.String("target", "firmware", "partition to write: firmware or filesystem")
	allowDowngrade := fs.Bool("allow-downgrade", false, "skip the version check against the last successful upload")
	if err := a.parseFlags(fs, args, 1, "ota upload [-target firmware|filesystem] [-allow-downgrade] FILE"); err != nil {
		return a.fail(err)
	}

	target, err := ota.ParseTarget(*targetName)
	if err != nil {
		return a.fail(err)
	}

	path := fs.Arg(0)
	file, err := os.Open(path)
	if err != nil {
		return a.fail(err)
	}
	size := int64(ota.SizeUnknown)
	if info, err := file.Stat(); err == nil && info.Mode().IsRegular() {
		size = info.Size()
	}
	img := &ota.Image{Name: filepath.Base(path), Size: size, Content: file}
	if utils.IsPrerelease(img.Name) {
		log.Warn().Str("file", img.Name).Msg("uploading a pre-release image")
	}

	hist, closeHistory, err := a.openHistory()
	if err != nil {
		log.Warn().Err(err).Msg("upload history unavailable")
	} else {
		defer closeHistory()
		if !*allowDowngrade {
			if err := hist.CheckDowngrade(ctx, target, img.Name); err != nil {
				file.Close()
				if errors.Is(err, history.ErrDowngrade) {
					return a.fail(fmt.Errorf("%w (use -allow-downgrade to write it anyway)", err))
				}
				return a.fail(err)
			}
		}
	}

	ctrl := ota.NewController(a.client)
	ctrl.SelectTarget(target)
	if hist != nil {
		ctrl.Subscribe(hist.Observer(context.WithoutCancel(ctx)))
	}
	printer := newProgressPrinter(a.out)
	ctrl.Subscribe(printer.observe)

	// Interrupting ctx cancels the upload and notifies the device
	if err := ctrl.Start(ctx, img); err != nil {
		file.Close()
		return a.fail(err)
	}

	s, _ := ctrl.Wait(context.WithoutCancel(ctx))

	switch s.State {
	case ota.StateSucceeded:
		fmt.Fprintf(a.out, "%s: %s\n", target, s.ResultMessage)
		return exitOK
	case ota.StateCancelled:
		fmt.Fprintln(a.errOut, s.ResultMessage)
		return exitCancelled
	default:
		if s.Err != nil {
			return a.fail(s.Err)
		}
		return a.fail(errors.New(s.ResultMessage))
	}
}

func otaStatus(ctx context.Context, a *app, args []string) int {
	if err := a.parseFlags(flag.NewFlagSet("ota status", flag.ContinueOnError), args, 0, "ota status"); err != nil {
		return a.fail(err)
	}

	st, err := a.client.OTAStatus(ctx)
	if err != nil {
		return a.fail(err)
	}

	state := "idle"
	switch {
	case st.InProgress:
		state = "in progress"
	case st.Error:
		state = "failed"
	}
	fmt.Fprintf(a.out, "State:   %s\n", state)
	fmt.Fprintf(a.out, "Written: %s", utils.HumanFileSize(st.BytesWritten))
	if st.TotalBytes > 0 {
		fmt.Fprintf(a.out, " of %s", utils.HumanFileSize(st.TotalBytes))
	}
	fmt.Fprintln(a.out)
	if st.Message != "" {
		fmt.Fprintf(a.out, "Message: %s\n", st.Message)
	}
	return exitOK
}

func otaHistory(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("ota history", flag.ContinueOnError)
	limit := fs.Int("n", 10, "number of uploads to show, 0 for all")
	if err := a.parseFlags(fs, args, 0, "ota history [-n N]"); err != nil {
		return a.fail(err)
	}

	hist, closeHistory, err := a.openHistory()
	if err != nil {
		return a.fail(err)
	}
	defer closeHistory()

	records, err := hist.List(ctx, *limit)
	if err != nil {
		return a.fail(err)
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No uploads recorded.")
		return exitOK
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tTARGET\tFILE\tVERSION\tSTATE\tSIZE\tMESSAGE")
	for _, r := range records {
		version := r.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.Target, r.FileName, version, r.State,
			utils.HumanFileSize(r.TotalBytes), r.Message)
	}
	tw.Flush()
	return exitOK
}

// progressPrinter renders upload progress on a single line
type progressPrinter struct {
	w io.Writer

	mu   sync.Mutex
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) observe(ev ota.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ev.Session
	if s.State.Terminal() {
		if p.last != "" {
			fmt.Fprintln(p.w)
			p.last = ""
		}
		return
	}
	if s.State != ota.StateInFlight {
		return
	}

	line := formatProgress(s)
	if line == p.last {
		return
	}
	fmt.Fprintf(p.w, "\r%-*s", len(p.last), line)
	p.last = line
}

const barWidth = 30

// formatProgress renders e.g. "[=========>      ]  42%  1.2 MB / 2.9 MB  ETA 3s"
func formatProgress(s ota.Session) string {
	filled := s.ProgressPercent * barWidth / 100
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %3d%%  ", bar, s.ProgressPercent)
	if s.SizeKnown {
		fmt.Fprintf(&b, "%s / %s", utils.HumanFileSize(s.BytesSent), utils.HumanFileSize(s.TotalBytes))
	} else {
		fmt.Fprintf(&b, "%s sent", utils.HumanFileSize(s.BytesSent))
	}

	if s.ETAKnown {
		fmt.Fprintf(&b, "  ETA %s", time.Duration(s.ETASeconds)*time.Second)
	} else {
		b.WriteString("  ETA --")
	}
	return b.String()
}
