package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"folio/internal/browser"
	"folio/internal/nav"
	"folio/internal/toc"
)

var (
	navStrip   string
	navSettle  time.Duration
	navWait    time.Duration
	navTimeout time.Duration
)

var navcheckCmd = &cobra.Command{
	Use:   "navcheck <url>",
	Short: "Load a page in headless Chrome and check that every section becomes active when selected",
	Args:  cobra.ExactArgs(1),
	RunE:  runNavcheck,
}

func init() {
	navcheckCmd.Flags().StringVar(&navStrip, "strip", "", "CSS selector of the narrow-viewport navigation strip")
	navcheckCmd.Flags().DurationVar(&navSettle, "settle", 1500*time.Millisecond, "Time to let the heading passes run before checking")
	navcheckCmd.Flags().DurationVar(&navWait, "wait", 3*time.Second, "How long to wait for each section to become active")
	navcheckCmd.Flags().DurationVar(&navTimeout, "timeout", 2*time.Minute, "Overall timeout")
}

type navResult struct {
	heading toc.Heading
	active  string
	ok      bool
}

func runNavcheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), navTimeout)
	defer cancel()

	page, err := browser.Open(ctx, args[0], 100*time.Millisecond, logger.Named("browser"))
	if err != nil {
		return err
	}
	defer page.Close()

	var trackerOpts []nav.TrackerOption
	if navStrip != "" {
		trackerOpts = append(trackerOpts, nav.WithStrip(page.Strip(navStrip)))
	}
	tracker := nav.NewTracker(page, logger.Named("tracker"), trackerOpts...)
	view := nav.NewView(page, tracker, logger.Named("view"))
	defer view.Close()

	if err := view.Mount(); err != nil {
		return err
	}
	if err := sleep(ctx, navSettle); err != nil {
		return err
	}

	headings := view.Headings()
	if len(headings) == 0 {
		return fmt.Errorf("no h1-h3 headings found on %s", args[0])
	}

	results := make([]navResult, 0, len(headings))
	for _, h := range headings {
		tracker.Select(h.ID)
		active, ok := waitActive(ctx, tracker, h.ID, navWait)
		results = append(results, navResult{heading: h, active: active, ok: ok})
		logger.Debug("section checked", zap.String("id", h.ID), zap.String("active", active), zap.Bool("ok", ok))
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tID\tACTIVE\tRESULT")
	failed := 0
	for _, r := range results {
		result := "ok"
		if !r.ok {
			result = "MISS"
			failed++
		}
		fmt.Fprintf(tw, "h%d\t%s\t%s\t%s\n", r.heading.Level, r.heading.ID, r.active, result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sections never became active", failed, len(results))
	}
	return nil
}

// waitActive polls until id is the active section or wait elapses.
func waitActive(ctx context.Context, tracker *nav.Tracker, id string, wait time.Duration) (string, bool) {
	deadline := time.Now().Add(wait)
	for {
		active, _ := tracker.Active()
		if active == id {
			return active, true
		}
		if time.Now().After(deadline) || sleep(ctx, 50*time.Millisecond) != nil {
			return active, false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
