package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omnitool/omnitool/internal/bridge"
	"github.com/omnitool/omnitool/internal/history"
	"github.com/omnitool/omnitool/internal/log"
	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/telemetry"
)

const metricsInterval = 30 * time.Second

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "print the metadata of a video",
	Args:  cobra.ExactArgs(1),
	RunE:  doInfo,
}

var (
	flagQuality string
	flagFormat  string
	flagOutput  string
	flagID      string
	flagJobs    int
	flagLimit   int
)

var downloadCmd = &cobra.Command{
	Use:   "download <url>...",
	Short: "download videos, progress is printed as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doDownload,
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "serve JSON requests on stdin, responses and events go to stdout",
	RunE:  doBridge,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "print finished tasks, newest first",
	RunE:  doHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a omnitool",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("omnitool: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("omnitool: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func init() {
	downloadCmd.Flags().StringVar(&flagQuality, "quality", "", "one of best, 2160p, 1440p, 1080p, 720p, 480p, 360p, 240p")
	downloadCmd.Flags().StringVar(&flagFormat, "format", "", "one of mp4, webm, mp3, m4a, opus, audio")
	downloadCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output directory")
	downloadCmd.Flags().StringVar(&flagID, "id", "", "correlation id, generated when empty")
	downloadCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 2, "number of parallel downloads")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of records, 0 prints all")
}

// withBridge runs fn with a bridge over a fresh engine and tears it down
// afterwards.
func withBridge(ctx context.Context, fn func(context.Context, *bridge.Bridge) error) error {
	var opts []bridge.EngineOption
	if config.Metrics.Enabled {
		mp, err := telemetry.NewStdoutProvider(os.Stderr, metricsInterval)
		if err != nil {
			return err
		}
		defer func() {
			if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.ErrorContext(ctx, "flushing metrics has failed", "error", err)
			}
		}()
		metrics, err := telemetry.New(mp)
		if err != nil {
			return err
		}
		opts = append(opts, bridge.WithMetrics(metrics))
	}

	engine, err := bridge.NewEngine(ctx, config, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.ErrorContext(ctx, "closing engine has failed", "error", err)
		}
	}()
	return fn(ctx, bridge.New(engine))
}

func commandContext(cmd *cobra.Command, name string) context.Context {
	attrs := slog.Group("omnitool",
		slog.String("cmd", name),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func doInfo(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd, "info")
	return withBridge(ctx, func(ctx context.Context, b *bridge.Bridge) error {
		info, err := b.GetVideoInfo(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	})
}

func doDownload(cmd *cobra.Command, args []string) error {
	if flagID != "" && len(args) > 1 {
		return errors.New("--id can be used with a single url only")
	}
	ctx := commandContext(cmd, "download")
	return withBridge(ctx, func(ctx context.Context, b *bridge.Bridge) error {
		out := &lockedEncoder{enc: json.NewEncoder(cmd.OutOrStdout())}
		var g errgroup.Group
		g.SetLimit(max(flagJobs, 1))
		errs := make([]error, len(args))
		for i, url := range args {
			g.Go(func() error {
				errs[i] = download(ctx, b, out, url)
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	})
}

// download runs a single download and prints its progress events followed
// by the outcome.
func download(ctx context.Context, b *bridge.Bridge, out *lockedEncoder, url string) error {
	d, err := b.DownloadVideo(ctx, bridge.DownloadRequest{
		URL:           url,
		Quality:       flagQuality,
		Format:        flagFormat,
		OutputPath:    flagOutput,
		CorrelationID: flagID,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		for ev := range d.Progress() {
			err := out.encode(bridge.Event{
				Event:         bridge.EventDownloadProgress,
				CorrelationID: d.ID(),
				Data:          ev,
			})
			if err != nil {
				d.Discard()
				return err
			}
		}
		return nil
	})
	var outcome model.Outcome
	g.Go(func() error {
		var err error
		outcome, err = d.Wait(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	return out.encode(outcome)
}

type lockedEncoder struct {
	mx  sync.Mutex
	enc *json.Encoder
}

func (e *lockedEncoder) encode(v any) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.enc.Encode(v)
}

func doBridge(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "bridge")
	return withBridge(ctx, func(ctx context.Context, b *bridge.Bridge) error {
		return b.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	})
}

func doHistory(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "history")
	path := config.History.Path
	if path == "" {
		var err error
		path, err = bridge.DefaultHistoryPath()
		if err != nil {
			return err
		}
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	records, err := store.List(ctx, flagLimit)
	if err != nil {
		return err
	}
	return printRecords(cmd.OutOrStdout(), records)
}

type recordJSON struct {
	CorrelationID string    `json:"correlationId"`
	Kind          string    `json:"kind"`
	State         string    `json:"state"`
	ExitCode      int       `json:"exitCode"`
	Signal        string    `json:"signal,omitempty"`
	Error         string    `json:"error,omitempty"`
	Args          []string  `json:"args"`
	Started       time.Time `json:"started"`
	Duration      string    `json:"duration"`
}

func printRecords(w io.Writer, records []model.TaskRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		err := enc.Encode(recordJSON{
			CorrelationID: r.CorrelationID,
			Kind:          r.Kind.String(),
			State:         r.State.String(),
			ExitCode:      r.ExitCode,
			Signal:        r.Signal,
			Error:         r.Error,
			Args:          r.Args,
			Started:       r.Started,
			Duration:      r.Stopped.Sub(r.Started).String(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
