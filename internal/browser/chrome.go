package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"

	"leavebot/internal/forms"
	"leavebot/pkg/logx"
)

// ChromeLauncher launches one Chrome process per session via chromedp's
// exec allocator.
type ChromeLauncher struct {
	opts Options
	log  logx.Logger
}

func NewChromeLauncher(opts Options, log logx.Logger) *ChromeLauncher {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	return &ChromeLauncher{opts: opts, log: log}
}

func (l *ChromeLauncher) NewSession(ctx context.Context) (Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !l.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Start the browser now so launch failures surface here, not mid-fill.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	return &chromeSession{
		tab:     tabCtx,
		opts:    l.opts,
		log:     l.log,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
	}, nil
}

type chromeSession struct {
	tab     context.Context
	opts    Options
	log     logx.Logger
	cancels []context.CancelFunc
}

// run executes actions on the tab with a per-call timeout. The context must
// stay rooted in the tab context (that is where chromedp keeps its state),
// so caller cancellation is bridged over instead of re-rooting.
func (s *chromeSession) run(parent context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if timeout > 0 {
		var cancelT context.CancelFunc
		ctx, cancelT = context.WithTimeout(ctx, timeout)
		defer cancelT()
	}
	if parent != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-parent.Done():
				cancel()
			case <-stop:
			}
		}()
	}
	return chromedp.Run(ctx, actions...)
}

func (s *chromeSession) Open(ctx context.Context, url string) error {
	err := s.run(ctx, s.opts.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitVisible("form", chromedp.ByQuery),
		chromedp.WaitVisible(formReadySelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open form %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Fill(ctx context.Context, target forms.Target) error {
	if err := s.fillName(ctx); err != nil {
		return err
	}
	if err := s.checkVacation(ctx, target.Day); err != nil {
		return err
	}
	if err := s.fillReason(ctx, target.Reason); err != nil {
		return err
	}
	return nil
}

func (s *chromeSession) fillName(ctx context.Context) error {
	for _, sel := range nameSelectors {
		err := s.run(ctx, s.opts.ActionTimeout,
			chromedp.Click(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, s.opts.UserName, chromedp.ByQuery),
		)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("name input: %w", ErrElementNotFound)
}

func (s *chromeSession) checkVacation(ctx context.Context, day forms.Day) error {
	var res string
	script := fmt.Sprintf(checkVacationScript, day.Token())
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return fmt.Errorf("vacation radio: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("vacation radio (%s): %w", res, ErrElementNotFound)
	}
	return nil
}

// tagReasonScript marks the last matching textarea so SendKeys can target
// it (the reason field is the last question on weekend forms).
const tagReasonScript = `(function(sel) {
	var els = document.querySelectorAll(sel);
	if (!els.length) return false;
	els[els.length - 1].setAttribute('data-reason-field', '1');
	return true;
})(%q)`

func (s *chromeSession) fillReason(ctx context.Context, reason string) error {
	if reason == "" {
		return nil
	}
	for _, sel := range reasonSelectors {
		var tagged bool
		script := fmt.Sprintf(tagReasonScript, sel)
		if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, &tagged)); err != nil || !tagged {
			continue
		}
		err := s.run(ctx, s.opts.ActionTimeout,
			chromedp.Click("[data-reason-field='1']", chromedp.ByQuery),
			chromedp.SendKeys("[data-reason-field='1']", reason, chromedp.ByQuery),
		)
		if err == nil {
			return nil
		}
	}
	// The reason field is absent on weekday forms that share a URL shape;
	// log and continue rather than failing the whole attempt.
	s.log.Warn("reason field not found; continuing without it")
	return nil
}

func (s *chromeSession) Submit(ctx context.Context) error {
	var clicked bool
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(clickSubmitScript, &clicked)); err != nil {
		return fmt.Errorf("submit click: %w", err)
	}
	if !clicked {
		return fmt.Errorf("submit button: %w", ErrElementNotFound)
	}
	return nil
}

var redirectRe = regexp.MustCompile(submitRedirectPattern)

func (s *chromeSession) AwaitOutcome(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		var loc string
		if err := s.run(ctx, 2*time.Second, chromedp.Location(&loc)); err == nil && redirectRe.MatchString(loc) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNoRedirect
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *chromeSession) Closed(ctx context.Context) bool {
	patterns, err := json.Marshal(closedBanners)
	if err != nil {
		return false
	}
	var found string
	script := fmt.Sprintf(closedCheckScript, string(patterns))
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
		return false
	}
	if found != "" {
		s.log.Info("form closed banner detected", logx.String("banner", found))
		return true
	}
	return false
}

func (s *chromeSession) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (s *chromeSession) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}
