package capture

import (
	"context"
	"sync"
	"time"

	"channel-snapshot/internal/retry"

	"github.com/go-logr/logr"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

type PlaywrightConfig struct {
	Engine   string
	Headless bool
	Device   string

	IdleClose         time.Duration
	MaxOpenedBrowsers int
	AppPath           string

	Timeout time.Duration

	// LaunchRetries bounds how often a failed browser launch or CDP connection is retried
	// inside one Acquire. Zero means a single attempt.
	LaunchRetries uint
	LaunchBackoff time.Duration

	ChromeDevtoolsProtocolURL string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		Engine:            "chromium",
		Headless:          true,
		Device:            "Pixel 5",
		IdleClose:         60 * time.Second,
		MaxOpenedBrowsers: 1,
		Timeout:           30 * time.Second,
		LaunchBackoff:     500 * time.Millisecond,
	}
}

// InstallPlaywright downloads the driver and the configured browser engine.
func InstallPlaywright(c PlaywrightConfig) error {
	if err := playwright.Install(&playwright.RunOptions{
		DriverDirectory: c.AppPath,
		Browsers:        []string{c.Engine},
	}); err != nil {
		return xerrors.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

// WithSettings applies the browser-level fields of s: the session cap, headless mode and
// driver directory.
func (c PlaywrightConfig) WithSettings(s Settings) PlaywrightConfig {
	if s.MaxConcurrentSessions > 0 {
		c.MaxOpenedBrowsers = s.MaxConcurrentSessions
	}
	c.Headless = s.Headless
	if s.RootPath != "" {
		c.AppPath = s.RootPath
	}
	return c
}

type PlaywrightPool struct {
	config PlaywrightConfig
	log    logr.Logger
	slots  *semaphore.Weighted
	retry  retry.Strategy

	start  func() (*playwright.Playwright, error)
	stop   func(*playwright.Playwright) error
	launch func(*playwright.Playwright) (Session, error)

	mu     sync.Mutex
	pw     *playwright.Playwright
	active int
	idle   *time.Timer
}

func NewPlaywrightPool(ctx context.Context, c PlaywrightConfig, log logr.Logger) (*PlaywrightPool, error) {
	switch c.Engine {
	case "chromium", "firefox", "webkit":
	default:
		return nil, xerrors.Errorf("unknown browser engine: %s", c.Engine)
	}
	if c.ChromeDevtoolsProtocolURL != "" && c.Engine != "chromium" {
		return nil, xerrors.Errorf("CDP connection requires chromium, got %s", c.Engine)
	}
	if c.MaxOpenedBrowsers <= 0 {
		c.MaxOpenedBrowsers = 1
	}

	p := &PlaywrightPool{
		config: c,
		log:    log.WithName("pool"),
		slots:  semaphore.NewWeighted(int64(c.MaxOpenedBrowsers)),
		retry: retry.Backoff{
			Base:    c.LaunchBackoff,
			Max:     10 * c.LaunchBackoff,
			Retries: c.LaunchRetries,
		},
	}
	p.start = p.runDriver
	p.stop = func(pw *playwright.Playwright) error { return pw.Stop() }
	p.launch = p.launchBrowser
	return p, nil
}

func (p *PlaywrightPool) Acquire(ctx context.Context) (Session, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, xerrors.Errorf("failed to wait for a browser slot: %w", err)
	}

	pw, err := p.checkout()
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}

	var session Session
	if err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		s, err := p.launch(pw)
		if err != nil {
			p.log.V(1).Info("browser launch failed", "error", err.Error())
			return err
		}
		session = s
		return nil
	}); err != nil {
		p.checkin()
		return nil, err
	}
	return &pooledSession{Session: session, pool: p}, nil
}

func (p *PlaywrightPool) runDriver() (*playwright.Playwright, error) {
	options := &playwright.RunOptions{}
	if p.config.AppPath != "" {
		options.DriverDirectory = p.config.AppPath
	}
	pw, err := playwright.Run(options)
	if err != nil {
		return nil, xerrors.Errorf("failed to start playwright: %w", err)
	}
	return pw, nil
}

func (p *PlaywrightPool) launchBrowser(pw *playwright.Playwright) (Session, error) {
	var browserType playwright.BrowserType
	switch p.config.Engine {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	contextOptions := playwright.BrowserNewContextOptions{}
	if p.config.Device != "" {
		device, ok := pw.Devices[p.config.Device]
		if !ok {
			return nil, retry.Permanent(xerrors.Errorf("unknown device profile: %s", p.config.Device))
		}
		contextOptions.UserAgent = playwright.String(device.UserAgent)
		contextOptions.Viewport = device.Viewport
		contextOptions.DeviceScaleFactor = playwright.Float(device.DeviceScaleFactor)
		contextOptions.IsMobile = playwright.Bool(device.IsMobile)
		contextOptions.HasTouch = playwright.Bool(device.HasTouch)
	}

	var browser playwright.Browser
	var err error
	shared := p.config.ChromeDevtoolsProtocolURL != ""
	if shared {
		browser, err = browserType.ConnectOverCDP(p.config.ChromeDevtoolsProtocolURL)
		if err != nil {
			return nil, xerrors.Errorf("failed to connect to browser via CDP at %s: %w", p.config.ChromeDevtoolsProtocolURL, err)
		}
	} else {
		browser, err = browserType.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(p.config.Headless),
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to launch browser: %w", err)
		}
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		if !shared {
			_ = browser.Close()
		}
		return nil, xerrors.Errorf("failed to create browser context: %w", err)
	}

	return &playwrightSession{
		timeout: p.config.Timeout,
		browser: browser,
		context: browserContext,
		shared:  shared,
	}, nil
}

func (p *PlaywrightPool) checkout() (*playwright.Playwright, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}

	if p.pw == nil {
		pw, err := p.start()
		if err != nil {
			return nil, err
		}
		p.pw = pw
		p.log.V(1).Info("playwright driver started")
	}

	p.active++
	return p.pw, nil
}

func (p *PlaywrightPool) checkin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active > 0 {
		p.active--
	}
	if p.active == 0 && p.pw != nil && p.config.IdleClose > 0 {
		p.idle = time.AfterFunc(p.config.IdleClose, p.evict)
	}
	p.slots.Release(1)
}

func (p *PlaywrightPool) evict() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active > 0 || p.pw == nil {
		return
	}
	if err := p.stop(p.pw); err != nil {
		p.log.Error(err, "failed to stop idle playwright driver")
	}
	p.pw = nil
	p.idle = nil
	p.log.V(1).Info("idle playwright driver stopped")
}

// Close stops the driver. Sessions still open are not waited for.
func (p *PlaywrightPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	if p.pw == nil {
		return nil
	}
	err := p.stop(p.pw)
	p.pw = nil
	if err != nil {
		return xerrors.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// pooledSession returns its slot to the pool on the first Close only.
type pooledSession struct {
	Session
	pool *PlaywrightPool

	once sync.Once
	err  error
}

func (s *pooledSession) Close() error {
	s.once.Do(func() {
		defer s.pool.checkin()
		s.err = s.Session.Close()
	})
	return s.err
}

type playwrightSession struct {
	timeout time.Duration
	browser playwright.Browser
	context playwright.BrowserContext
	shared  bool
}

func (s *playwrightSession) NewPage(ctx context.Context) (Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, xerrors.Errorf("failed to create new page: %w", err)
	}
	if page == nil {
		return nil, nil
	}
	page.SetDefaultNavigationTimeout(float64(s.timeout.Milliseconds()))
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	var err error
	if cerr := s.context.Close(); cerr != nil {
		err = xerrors.Errorf("failed to close browser context: %w", cerr)
	}
	if s.shared {
		return err
	}
	if berr := s.browser.Close(); berr != nil && err == nil {
		err = xerrors.Errorf("failed to close browser: %w", berr)
	}
	return err
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Route(pattern string, handler func(Route)) error {
	return p.page.Route(pattern, func(route playwright.Route) {
		handler(playwrightRoute{route: route})
	})
}

func (p *playwrightPage) Goto(url string) error {
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return xerrors.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) QuerySelector(selector string) (Element, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, xerrors.Errorf("failed to query %s: %w", selector, err)
	}
	if handle == nil {
		return nil, nil
	}
	return &playwrightElement{handle: handle}, nil
}

func (p *playwrightPage) QuerySelectorAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, xerrors.Errorf("failed to query %s: %w", selector, err)
	}
	elements := make([]Element, 0, len(handles))
	for _, handle := range handles {
		elements = append(elements, &playwrightElement{handle: handle})
	}
	return elements, nil
}

func (p *playwrightPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		Type:           playwright.ScreenshotTypePng,
		OmitBackground: playwright.Bool(true),
		FullPage:       playwright.Bool(true),
	})
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Evaluate(expression string, arg any) (any, error) {
	return e.handle.Evaluate(expression, arg)
}

func (e *playwrightElement) GetAttribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *playwrightElement) Screenshot() ([]byte, error) {
	return e.handle.Screenshot(playwright.ElementHandleScreenshotOptions{
		Type:           playwright.ScreenshotTypePng,
		OmitBackground: playwright.Bool(true),
	})
}

type playwrightRoute struct {
	route playwright.Route
}

func (r playwrightRoute) URL() string {
	return r.route.Request().URL()
}

func (r playwrightRoute) Abort() error {
	return r.route.Abort()
}

func (r playwrightRoute) Continue() error {
	return r.route.Continue()
}
