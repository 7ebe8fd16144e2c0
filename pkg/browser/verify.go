package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// VerifyTimeout bounds a single headless launch check.
const VerifyTimeout = 30 * time.Second

// Verify launches the browser binary at binPath headless and navigates to
// about:blank. It proves the provisioned binary and its shared libraries
// are usable; it drives no pages beyond that.
func Verify(ctx context.Context, binPath string) error {
	if _, err := os.Stat(binPath); err != nil {
		return fmt.Errorf("browser binary %s: %w", binPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, VerifyTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var title string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.Title(&title),
	)
	if err != nil {
		return fmt.Errorf("headless launch failed: %w", err)
	}
	return nil
}
