package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"fleetcore/apxerrors"
	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
)

// RodDriver is the secondary backend, used for contexts whose capabilities
// request stealth/anti-automation-detection behavior that the Playwright
// backend does not model directly — go-rod's CDP-level control plus
// go-rod/stealth's fingerprint patching cover that case (spec §4.0).
type RodDriver struct{}

// NewRodDriver constructs the stealth-capable secondary backend.
func NewRodDriver() *RodDriver { return &RodDriver{} }

func (d *RodDriver) Name() string { return "rod" }

type rodHandle struct {
	browser *rod.Browser
}

type rodPage struct {
	page *rod.Page
}

func (d *RodDriver) Launch(ctx context.Context, opts LaunchOptions) (DriverHandle, error) {
	browser := rod.New()
	if err := browser.Context(ctx).Connect(); err != nil {
		return nil, fmt.Errorf("rod connect: %w", err)
	}
	return &rodHandle{browser: browser}, nil
}

func (d *RodDriver) Version(ctx context.Context, h DriverHandle) (string, error) {
	rh, ok := h.(*rodHandle)
	if !ok {
		return "", fmt.Errorf("not a rod handle")
	}
	info, err := rh.browser.Version()
	if err != nil {
		return "", err
	}
	return info.Product, nil
}

func (d *RodDriver) NewPage(ctx context.Context, h DriverHandle, caps browsercontext.Capabilities) (DriverPage, error) {
	rh, ok := h.(*rodHandle)
	if !ok {
		return nil, fmt.Errorf("not a rod handle")
	}

	page, err := stealth.Page(rh.browser)
	if err != nil {
		return nil, fmt.Errorf("stealth page: %w", err)
	}
	if caps.Viewport != nil {
		if err := page.SetViewport(&rod.Viewport{
			Width:  int64(caps.Viewport.Width),
			Height: int64(caps.Viewport.Height),
		}); err != nil {
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if caps.UserAgent != "" {
		if err := page.SetUserAgent(nil); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return &rodPage{page: page}, nil
}

func (d *RodDriver) ClosePage(ctx context.Context, p DriverPage) error {
	rp, ok := p.(*rodPage)
	if !ok {
		return fmt.Errorf("not a rod page")
	}
	return rp.page.Close()
}

func (d *RodDriver) HealthCheck(ctx context.Context, h DriverHandle) error {
	rh, ok := h.(*rodHandle)
	if !ok {
		return fmt.Errorf("not a rod handle")
	}
	_, err := rh.browser.Version()
	return err
}

func (d *RodDriver) Close(ctx context.Context, h DriverHandle) error {
	rh, ok := h.(*rodHandle)
	if !ok {
		return fmt.Errorf("not a rod handle")
	}
	return rh.browser.Close()
}

func asRodPage(p DriverPage) (*rod.Page, error) {
	rp, ok := p.(*rodPage)
	if !ok {
		return nil, fmt.Errorf("not a rod page")
	}
	return rp.page, nil
}

func (d *RodDriver) Navigate(ctx context.Context, p DriverPage, params action.NavigateParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	if err := page.Context(ctx).Navigate(params.URL); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (d *RodDriver) Click(ctx context.Context, p DriverPage, params action.ClickParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(params.Selector)
	if err != nil {
		return err
	}
	button := proto.InputMouseButtonLeft
	if params.Button == "right" {
		button = proto.InputMouseButtonRight
	}
	return el.Click(button, 1)
}

func (d *RodDriver) Type(ctx context.Context, p DriverPage, params action.TypeParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(params.Selector)
	if err != nil {
		return err
	}
	return el.Input(params.Text)
}

func (d *RodDriver) Select(ctx context.Context, p DriverPage, params action.SelectParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(params.Selector)
	if err != nil {
		return err
	}
	return el.Select(params.Values, true, rod.SelectorTypeText)
}

func (d *RodDriver) Keyboard(ctx context.Context, p DriverPage, params action.KeyboardParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	return page.Context(ctx).Keyboard.Type(input.Key(params.Key[0]))
}

func (d *RodDriver) Mouse(ctx context.Context, p DriverPage, params action.MouseParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	switch params.Op {
	case "down":
		return page.Mouse.Down("left", 1)
	case "up":
		return page.Mouse.Up("left", 1)
	case "drag":
		return dragRodMouse(page, params)
	default:
		return page.Mouse.MoveTo(proto.Point{X: float64(params.X), Y: float64(params.Y)})
	}
}

// dragRodMouse interpolates Steps intermediate points between the drag's
// start and end coordinates, pressing the button down before the first move
// and releasing it after the last — a single step is just one move straight
// to the destination.
func dragRodMouse(page *rod.Page, params action.MouseParams) error {
	if err := page.Mouse.MoveTo(proto.Point{X: float64(params.X), Y: float64(params.Y)}); err != nil {
		return err
	}
	if err := page.Mouse.Down("left", 1); err != nil {
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
		if err := page.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
			return err
		}
	}
	return page.Mouse.Up("left", 1)
}

func (d *RodDriver) Hover(ctx context.Context, p DriverPage, selector string) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Hover()
}

func (d *RodDriver) Focus(ctx context.Context, p DriverPage, selector string) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Focus()
}

func (d *RodDriver) Blur(ctx context.Context, p DriverPage, selector string) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Eval(`(sel) => document.querySelector(sel).blur()`, selector)
	return err
}

func (d *RodDriver) Screenshot(ctx context.Context, p DriverPage, params action.ScreenshotParams) ([]byte, error) {
	page, err := asRodPage(p)
	if err != nil {
		return nil, err
	}
	if params.Selector != "" {
		el, err := page.Context(ctx).Element(params.Selector)
		if err != nil {
			return nil, err
		}
		return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	}
	return page.Context(ctx).Screenshot(params.FullPage, nil)
}

func (d *RodDriver) PDF(ctx context.Context, p DriverPage, params action.PDFParams) ([]byte, error) {
	page, err := asRodPage(p)
	if err != nil {
		return nil, err
	}
	reader, err := page.Context(ctx).PDF(&proto.PagePrintToPDF{Landscape: params.Landscape})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0)
	chunk := make([]byte, 4096)
	for {
		n, rerr := reader.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rerr != nil {
			break
		}
	}
	return buf, nil
}

func (d *RodDriver) Content(ctx context.Context, p DriverPage, selector string) (string, error) {
	page, err := asRodPage(p)
	if err != nil {
		return "", err
	}
	if selector == "" {
		return page.Context(ctx).HTML()
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

func (d *RodDriver) Evaluate(ctx context.Context, p DriverPage, script string) (interface{}, error) {
	page, err := asRodPage(p)
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Eval(script)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (d *RodDriver) Upload(ctx context.Context, p DriverPage, params action.UploadParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(params.Selector)
	if err != nil {
		return err
	}
	return el.SetFiles(params.FilePaths)
}

func (d *RodDriver) Download(ctx context.Context, p DriverPage, params action.DownloadParams) (string, error) {
	return "", apxerrors.Unavailable("rod driver does not support action: download")
}

func (d *RodDriver) Cookie(ctx context.Context, p DriverPage, params action.CookieParams) (interface{}, error) {
	page, err := asRodPage(p)
	if err != nil {
		return nil, err
	}
	switch params.Op {
	case "set":
		return nil, page.Context(ctx).SetCookies([]*proto.NetworkCookieParam{{
			Name: params.Name, Value: params.Value, Domain: params.Domain,
		}})
	case "delete", "clear":
		return nil, proto.NetworkClearBrowserCookies{}.Call(page)
	default:
		return page.Context(ctx).Cookies(nil)
	}
}

func (d *RodDriver) WaitFor(ctx context.Context, p DriverPage, params action.WaitParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	if params.Selector != "" {
		el, err := page.Context(ctx).Element(params.Selector)
		if err != nil {
			return err
		}
		switch params.State {
		case "hidden":
			return el.WaitInvisible()
		default:
			return el.WaitVisible()
		}
	}
	if params.Duration > 0 {
		time.Sleep(params.Duration)
	}
	return nil
}

func (d *RodDriver) Scroll(ctx context.Context, p DriverPage, params action.ScrollParams) error {
	page, err := asRodPage(p)
	if err != nil {
		return err
	}
	if params.Selector != "" {
		el, err := page.Context(ctx).Element(params.Selector)
		if err != nil {
			return err
		}
		return el.ScrollIntoView()
	}
	_, err = page.Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, params.DeltaX, params.DeltaY)
	return err
}
