package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeOptions configures a headless Chrome session
type ChromeOptions struct {
	Headless        bool
	UserAgent       string
	ExecPath        string
	AcceptLanguage  string
	NavigateTimeout time.Duration
	ActionTimeout   time.Duration
}

// DefaultChromeOptions returns options suitable for unattended runs
func DefaultChromeOptions() ChromeOptions {
	return ChromeOptions{
		Headless:        true,
		AcceptLanguage:  "ja,en;q=0.8",
		NavigateTimeout: 30 * time.Second,
		ActionTimeout:   15 * time.Second,
	}
}

// ChromeLauncher starts Chrome through the DevTools protocol
type ChromeLauncher struct {
	opts   ChromeOptions
	logger *slog.Logger
}

// NewChromeLauncher creates a launcher
func NewChromeLauncher(opts ChromeOptions, logger *slog.Logger) *ChromeLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultChromeOptions().NavigateTimeout
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultChromeOptions().ActionTimeout
	}
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts a browser process. The session outlives ctx; ctx only
// bounds the startup.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 800),
	)
	if l.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			l.logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	s := &chromeSession{
		opts:          l.opts,
		logger:        l.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	startup := []chromedp.Action{network.Enable()}
	if l.opts.AcceptLanguage != "" {
		startup = append(startup, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": l.opts.AcceptLanguage,
		}))
	}

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(browserCtx, startup...) }()

	select {
	case err := <-errc:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("starting chrome: %w", err)
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	l.logger.Debug("chrome session started", "headless", l.opts.Headless)
	return s, nil
}

type chromeSession struct {
	opts   ChromeOptions
	logger *slog.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// run executes actions in the browser, bounded by both ctx and timeout
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	opCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.opts.NavigateTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *chromeSession) Perform(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepLogin:
		if step.Credential == nil {
			return fmt.Errorf("login step without credential")
		}
		script, err := loginScript(step.Credential.Username, step.Credential.Password)
		if err != nil {
			return err
		}
		var found bool
		if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if !found {
			return fmt.Errorf("login: no login form on page")
		}
		return s.run(ctx, s.opts.NavigateTimeout, chromedp.WaitReady("body", chromedp.ByQuery))

	case StepWait:
		settle := step.Settle
		if settle <= 0 {
			settle = time.Second
		}
		return s.run(ctx, s.opts.ActionTimeout+settle,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(settle),
		)

	case StepSearch:
		script, err := searchScript(step.Query)
		if err != nil {
			return err
		}
		var found bool
		if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if !found {
			s.logger.Debug("no search box, reading landing page", "query", step.Query)
			return nil
		}
		return s.run(ctx, s.opts.NavigateTimeout, chromedp.WaitReady("body", chromedp.ByQuery))

	case StepExtract:
		return s.run(ctx, s.opts.ActionTimeout,
			chromedp.Evaluate(`window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`, nil),
		)

	default:
		return fmt.Errorf("unknown step %q", step.Kind)
	}
}

func (s *chromeSession) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	return text, err
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
	})
	return err
}

// loginScript fills the first password field and the text field before it,
// then submits the enclosing form. It evaluates to whether a form was found.
func loginScript(username, password string) (string, error) {
	u, err := json.Marshal(username)
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(password)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const pw = document.querySelector('input[type=password]');
  if (!pw) return false;
  const inputs = Array.from(document.querySelectorAll('input[type=text],input[type=email],input:not([type])'));
  const user = inputs.filter(i => i.compareDocumentPosition(pw) & Node.DOCUMENT_POSITION_FOLLOWING).pop() || inputs[0];
  const set = (el, v) => { el.focus(); el.value = v; el.dispatchEvent(new Event('input', {bubbles: true})); };
  if (user) set(user, %s);
  set(pw, %s);
  const form = pw.form;
  if (form) { form.requestSubmit ? form.requestSubmit() : form.submit(); }
  else { const btn = document.querySelector('button[type=submit],input[type=submit]'); if (btn) btn.click(); }
  return true;
})()`, u, p), nil
}

// searchScript types query into the most likely search box and submits it.
// It evaluates to whether a search box was found.
func searchScript(query string) (string, error) {
	q, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const box = document.querySelector('input[type=search]')
    || document.querySelector('input[name*=keyword i],input[name*=search i],input[name=q],input[name*=kw i]')
    || document.querySelector('input[type=text]');
  if (!box) return false;
  box.focus();
  box.value = %s;
  box.dispatchEvent(new Event('input', {bubbles: true}));
  if (box.form) { box.form.requestSubmit ? box.form.requestSubmit() : box.form.submit(); }
  else { box.dispatchEvent(new KeyboardEvent('keydown', {key: 'Enter', bubbles: true})); }
  return true;
})()`, q), nil
}
