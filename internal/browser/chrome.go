// Package browser drives headless Chrome through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/chromedp/chromedp"
)

var ErrChromeMissing = errors.New("chrome not installed")

var chromeCandidates = []string{
	"chromium-browser",
	"chromium",
	"google-chrome",
	"google-chrome-stable",
	"headless-shell",
}

// LookupChrome finds a Chrome binary. CHROME_PATH wins over PATH lookup.
func LookupChrome() (string, error) {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: CHROME_PATH %s: %v", ErrChromeMissing, p, err)
		}
		return p, nil
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrChromeMissing
}

// NewAllocator starts a headless Chrome allocator suited to containers.
func NewAllocator(ctx context.Context) (context.Context, context.CancelFunc, error) {
	path, err := LookupChrome()
	if err != nil {
		return nil, nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return allocCtx, cancel, nil
}
