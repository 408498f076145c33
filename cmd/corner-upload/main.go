// Command corner-upload uploads photos and videos from disk into a locket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/twofold/corner/internal/logging"
	"github.com/twofold/corner/internal/uploader"
)

type options struct {
	apiURL      string
	token       string
	locketID    string
	groupID     string
	title       string
	caption     string
	pin         bool
	concurrency int
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "corner-upload [flags] FILE...",
		Short: "Upload photos and videos into a locket",
		Long: `Uploads each file straight to object storage using short-lived credentials
from the corner API, then registers it as media of a memory. Without --group a
new memory is created for the batch.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.apiURL, "api", envOr("CORNER_API_URL", "http://localhost:8080"), "API base URL")
	f.StringVar(&opts.token, "token", os.Getenv("CORNER_TOKEN"), "session token (or CORNER_TOKEN)")
	f.StringVarP(&opts.locketID, "locket", "l", "", "locket ID")
	f.StringVarP(&opts.groupID, "group", "g", "", "existing memory group ID")
	f.StringVarP(&opts.title, "title", "t", "", "title of the new memory")
	f.StringVar(&opts.caption, "caption", "", "caption for every uploaded item")
	f.BoolVar(&opts.pin, "pin", false, "pin the memory to the fridge after uploading")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 3, "files uploaded in parallel")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("locket")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options, paths []string) error {
	if opts.token == "" {
		return errors.New("a session token is required (--token or CORNER_TOKEN)")
	}

	env := "production"
	if opts.verbose {
		env = "development"
	}
	log, err := logging.New(env)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	files := make([]*uploader.File, 0, len(paths))
	for _, p := range paths {
		f, err := uploader.Inspect(p)
		if err != nil {
			return err
		}
		log.Debug("inspected file",
			zap.String("file", f.Name),
			zap.String("content_type", f.ContentType),
			zap.Int64("size", f.Size),
		)
		files = append(files, f)
	}

	target := uploader.Target{
		LocketID:      opts.locketID,
		MemoryGroupID: opts.groupID,
		Title:         optional(opts.title),
		Caption:       optional(opts.caption),
		Pin:           opts.pin,
	}

	d := uploader.New(uploader.Options{
		BaseURL:     opts.apiURL,
		Token:       opts.token,
		Concurrency: opts.concurrency,
		Logger:      log,
	})

	out := cmd.OutOrStdout()
	results, err := d.Upload(ctx, target, files, func(e uploader.Event) {
		if e.Err != nil {
			fmt.Fprintf(out, "%-30s %3d%%  failed: %v\n", e.File, e.Progress, e.Err)
			return
		}
		fmt.Fprintf(out, "%-30s %3d%%  %s\n", e.File, e.Progress, e.State)
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	fmt.Fprintf(out, "%d uploaded, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
