package pool

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
)

// playwrightHandle holds the launched browser; each NewPage call opens its
// own browser context and page on it (playwrightPage). Grounded on the
// teacher's PlaywrightBrowserInstance (services/browser_pool/playwright_manager.go),
// generalized to support arbitrary capability negotiation per context
// instead of one fixed launch profile.
type playwrightHandle struct {
	browser playwright.Browser
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
}

// PlaywrightDriver is the primary backend: native CDP/Firefox-Remote
// protocols, auto-wait, network interception.
type PlaywrightDriver struct {
	pw *playwright.Playwright
}

// NewPlaywrightDriver starts the Playwright driver process once per pool.
func NewPlaywrightDriver() (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &PlaywrightDriver{pw: pw}, nil
}

func (d *PlaywrightDriver) Name() string { return "playwright" }

func (d *PlaywrightDriver) browserType(kind string) playwright.BrowserType {
	switch kind {
	case "firefox":
		return d.pw.Firefox
	case "webkit", "safari":
		return d.pw.WebKit
	default:
		return d.pw.Chromium
	}
}

func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (DriverHandle, error) {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	browser, err := d.browserType(opts.BrowserKind).Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", opts.BrowserKind, err)
	}
	return &playwrightHandle{browser: browser}, nil
}

func (d *PlaywrightDriver) Version(ctx context.Context, h DriverHandle) (string, error) {
	ph, ok := h.(*playwrightHandle)
	if !ok {
		return "", fmt.Errorf("not a playwright handle")
	}
	return ph.browser.Version(), nil
}

func (d *PlaywrightDriver) NewPage(ctx context.Context, h DriverHandle, caps browsercontext.Capabilities) (DriverPage, error) {
	ph, ok := h.(*playwrightHandle)
	if !ok {
		return nil, fmt.Errorf("not a playwright handle")
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if caps.Viewport != nil {
		contextOpts.Viewport = &playwright.Size{Width: caps.Viewport.Width, Height: caps.Viewport.Height}
	}
	if caps.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(caps.UserAgent)
	}
	if caps.Locale != "" {
		contextOpts.Locale = playwright.String(caps.Locale)
	}
	if caps.Timezone != "" {
		contextOpts.TimezoneId = playwright.String(caps.Timezone)
	}
	if caps.JavaScriptOff {
		contextOpts.JavaScriptEnabled = playwright.Bool(false)
	}
	if caps.BypassCSP {
		contextOpts.BypassCSP = playwright.Bool(true)
	}
	if caps.Geolocation != nil {
		contextOpts.Geolocation = &playwright.Geolocation{
			Latitude:  caps.Geolocation.Latitude,
			Longitude: caps.Geolocation.Longitude,
		}
	}
	if caps.HTTPCredentials != nil {
		contextOpts.HttpCredentials = &playwright.HttpCredentials{
			Username: caps.HTTPCredentials.Username,
			Password: caps.HTTPCredentials.Password,
		}
	}
	if len(caps.ExtraHeaders) > 0 {
		contextOpts.ExtraHttpHeaders = caps.ExtraHeaders
	}

	bctx, err := ph.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &playwrightPage{context: bctx, page: page}, nil
}

func (d *PlaywrightDriver) ClosePage(ctx context.Context, p DriverPage) error {
	pp, ok := p.(*playwrightPage)
	if !ok {
		return fmt.Errorf("not a playwright page")
	}
	if err := pp.page.Close(); err != nil {
		return err
	}
	return pp.context.Close()
}

func (d *PlaywrightDriver) HealthCheck(ctx context.Context, h DriverHandle) error {
	ph, ok := h.(*playwrightHandle)
	if !ok {
		return fmt.Errorf("not a playwright handle")
	}
	if !ph.browser.IsConnected() {
		return fmt.Errorf("browser disconnected")
	}
	return nil
}

func (d *PlaywrightDriver) Close(ctx context.Context, h DriverHandle) error {
	ph, ok := h.(*playwrightHandle)
	if !ok {
		return fmt.Errorf("not a playwright handle")
	}
	return ph.browser.Close()
}

// Stop shuts down the playwright driver process itself, separate from
// closing individual browser instances.
func (d *PlaywrightDriver) Stop() error {
	return d.pw.Stop()
}

func asPWPage(p DriverPage) (playwright.Page, error) {
	pp, ok := p.(*playwrightPage)
	if !ok {
		return nil, fmt.Errorf("not a playwright page")
	}
	return pp.page, nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, p DriverPage, params action.NavigateParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	opts := playwright.PageGotoOptions{}
	switch params.WaitUntil {
	case "load":
		opts.WaitUntil = playwright.WaitUntilStateLoad
	case "networkidle":
		opts.WaitUntil = playwright.WaitUntilStateNetworkidle
	default:
		opts.WaitUntil = playwright.WaitUntilStateDomcontentloaded
	}
	_, err = page.Goto(params.URL, opts)
	return err
}

func (d *PlaywrightDriver) Click(ctx context.Context, p DriverPage, params action.ClickParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	opts := playwright.PageClickOptions{}
	if params.Button != "" {
		opts.Button = playwright.MouseButton(params.Button)
	}
	if params.ClickCount > 0 {
		opts.ClickCount = playwright.Int(params.ClickCount)
	}
	return page.Click(params.Selector, opts)
}

func (d *PlaywrightDriver) Type(ctx context.Context, p DriverPage, params action.TypeParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	opts := playwright.PageFillOptions{}
	if params.DelayMS > 0 {
		return page.Type(params.Selector, params.Text, playwright.PageTypeOptions{Delay: playwright.Float(float64(params.DelayMS))})
	}
	return page.Fill(params.Selector, params.Text, opts)
}

func (d *PlaywrightDriver) Select(ctx context.Context, p DriverPage, params action.SelectParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	_, err = page.SelectOption(params.Selector, playwright.SelectOptionValues{Values: &params.Values})
	return err
}

func (d *PlaywrightDriver) Keyboard(ctx context.Context, p DriverPage, params action.KeyboardParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	return page.Keyboard().Press(params.Key)
}

func (d *PlaywrightDriver) Mouse(ctx context.Context, p DriverPage, params action.MouseParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	x, y := float64(params.X), float64(params.Y)
	switch params.Op {
	case "down":
		return page.Mouse().Down()
	case "up":
		return page.Mouse().Up()
	case "drag":
		return dragPlaywrightMouse(page, params)
	default:
		return page.Mouse().Move(x, y)
	}
}

// dragPlaywrightMouse interpolates Steps intermediate points between the
// drag's start and end coordinates; a single step moves straight to the
// destination.
func dragPlaywrightMouse(page playwright.Page, params action.MouseParams) error {
	if err := page.Mouse().Move(float64(params.X), float64(params.Y)); err != nil {
		return err
	}
	if err := page.Mouse().Down(); err != nil {
		return err
	}
	steps := params.Steps
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		x := float64(params.X) + frac*float64(params.ToX-params.X)
		y := float64(params.Y) + frac*float64(params.ToY-params.Y)
		if err := page.Mouse().Move(x, y); err != nil {
			return err
		}
	}
	return page.Mouse().Up()
}

func (d *PlaywrightDriver) Hover(ctx context.Context, p DriverPage, selector string) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	return page.Hover(selector)
}

func (d *PlaywrightDriver) Focus(ctx context.Context, p DriverPage, selector string) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	return page.Focus(selector)
}

func (d *PlaywrightDriver) Blur(ctx context.Context, p DriverPage, selector string) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	_, err = page.EvalOnSelector(selector, "el => el.blur()")
	return err
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context, p DriverPage, params action.ScreenshotParams) ([]byte, error) {
	page, err := asPWPage(p)
	if err != nil {
		return nil, err
	}
	opts := playwright.PageScreenshotOptions{FullPage: playwright.Bool(params.FullPage)}
	if params.Format == "jpeg" {
		opts.Type = playwright.ScreenshotTypeJpeg
	}
	if params.Selector != "" {
		return page.Locator(params.Selector).Screenshot()
	}
	return page.Screenshot(opts)
}

func (d *PlaywrightDriver) PDF(ctx context.Context, p DriverPage, params action.PDFParams) ([]byte, error) {
	page, err := asPWPage(p)
	if err != nil {
		return nil, err
	}
	return page.PDF(playwright.PagePdfOptions{Landscape: playwright.Bool(params.Landscape)})
}

func (d *PlaywrightDriver) Content(ctx context.Context, p DriverPage, selector string) (string, error) {
	page, err := asPWPage(p)
	if err != nil {
		return "", err
	}
	if selector == "" {
		return page.Content()
	}
	v, err := page.Locator(selector).First().Evaluate("el => el.outerHTML", nil)
	if err != nil {
		return "", err
	}
	html, _ := v.(string)
	return html, nil
}

func (d *PlaywrightDriver) Evaluate(ctx context.Context, p DriverPage, script string) (interface{}, error) {
	page, err := asPWPage(p)
	if err != nil {
		return nil, err
	}
	return page.Evaluate(script)
}

func (d *PlaywrightDriver) Upload(ctx context.Context, p DriverPage, params action.UploadParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	files := make([]playwright.InputFile, 0, len(params.FilePaths))
	for _, fp := range params.FilePaths {
		files = append(files, playwright.InputFile{Name: fp})
	}
	return page.SetInputFiles(params.Selector, files)
}

func (d *PlaywrightDriver) Download(ctx context.Context, p DriverPage, params action.DownloadParams) (string, error) {
	page, err := asPWPage(p)
	if err != nil {
		return "", err
	}
	download, waitErr := page.ExpectDownload(func() error {
		return page.Click(params.Selector)
	})
	if waitErr != nil {
		return "", waitErr
	}
	return download.Path()
}

func (d *PlaywrightDriver) Cookie(ctx context.Context, p DriverPage, params action.CookieParams) (interface{}, error) {
	pp, ok := p.(*playwrightPage)
	if !ok {
		return nil, fmt.Errorf("not a playwright page")
	}
	switch params.Op {
	case "set":
		return nil, pp.context.AddCookies([]playwright.OptionalCookie{{
			Name: params.Name, Value: params.Value, Domain: playwright.String(params.Domain),
		}})
	case "delete", "clear":
		return nil, pp.context.ClearCookies()
	default:
		return pp.context.Cookies()
	}
}

func (d *PlaywrightDriver) WaitFor(ctx context.Context, p DriverPage, params action.WaitParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	if params.Selector != "" {
		state := playwright.WaitForSelectorStateVisible
		switch params.State {
		case "hidden":
			state = playwright.WaitForSelectorStateHidden
		case "attached":
			state = playwright.WaitForSelectorStateAttached
		case "detached":
			state = playwright.WaitForSelectorStateDetached
		}
		_, err = page.WaitForSelector(params.Selector, playwright.PageWaitForSelectorOptions{State: state})
		return err
	}
	if params.Duration > 0 {
		page.WaitForTimeout(float64(params.Duration.Milliseconds()))
	}
	return nil
}

func (d *PlaywrightDriver) Scroll(ctx context.Context, p DriverPage, params action.ScrollParams) error {
	page, err := asPWPage(p)
	if err != nil {
		return err
	}
	if params.Selector != "" {
		_, err = page.EvalOnSelector(params.Selector, "el => el.scrollIntoView()")
		return err
	}
	_, err = page.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", params.DeltaX, params.DeltaY))
	return err
}
