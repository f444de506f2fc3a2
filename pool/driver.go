// Package pool implements the browser pool core: driver facade, acquire/
// release/newPage/shutdown lifecycle, health monitoring, recycling, and
// metrics (spec §4.0–§4.4).
package pool

import (
	"context"

	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
)

// DriverHandle opaquely identifies a launched browser process to its driver.
type DriverHandle interface{}

// DriverPage opaquely identifies a page/tab to its driver.
type DriverPage interface{}

// LaunchOptions carries the capability negotiation a driver needs at launch
// time; not every driver honors every field (e.g. the Docker driver ignores
// stealth-only knobs).
type LaunchOptions struct {
	BrowserKind  string // chromium, firefox, webkit
	Headless     bool
	Capabilities browsercontext.Capabilities
}

// Driver is the facade every backend (Playwright, go-rod, Docker) implements.
// Handlers in the executor never talk to a backend directly, only through
// whichever Driver the owning Instance was launched with. The action-shaped
// methods below let the executor dispatch the full action taxonomy (spec
// §4.5) without knowing which backend is underneath; a backend that can't
// support an action returns an apxerrors.Unavailable-wrapped error instead
// of implementing it partially.
type Driver interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (DriverHandle, error)
	Version(ctx context.Context, h DriverHandle) (string, error)
	NewPage(ctx context.Context, h DriverHandle, caps browsercontext.Capabilities) (DriverPage, error)
	ClosePage(ctx context.Context, p DriverPage) error
	HealthCheck(ctx context.Context, h DriverHandle) error
	Close(ctx context.Context, h DriverHandle) error

	Navigate(ctx context.Context, p DriverPage, params action.NavigateParams) error
	Click(ctx context.Context, p DriverPage, params action.ClickParams) error
	Type(ctx context.Context, p DriverPage, params action.TypeParams) error
	Select(ctx context.Context, p DriverPage, params action.SelectParams) error
	Keyboard(ctx context.Context, p DriverPage, params action.KeyboardParams) error
	Mouse(ctx context.Context, p DriverPage, params action.MouseParams) error
	Hover(ctx context.Context, p DriverPage, selector string) error
	Focus(ctx context.Context, p DriverPage, selector string) error
	Blur(ctx context.Context, p DriverPage, selector string) error
	Screenshot(ctx context.Context, p DriverPage, params action.ScreenshotParams) ([]byte, error)
	PDF(ctx context.Context, p DriverPage, params action.PDFParams) ([]byte, error)
	// Content returns HTML. An empty selector returns the whole page;
	// a non-empty one scopes the result to the first matching element,
	// so element HTML/text/value extraction (spec §4.5) has something
	// to narrow before the executor picks the requested variant.
	Content(ctx context.Context, p DriverPage, selector string) (string, error)
	Evaluate(ctx context.Context, p DriverPage, script string) (interface{}, error)
	Upload(ctx context.Context, p DriverPage, params action.UploadParams) error
	Download(ctx context.Context, p DriverPage, params action.DownloadParams) (string, error)
	Cookie(ctx context.Context, p DriverPage, params action.CookieParams) (interface{}, error)
	WaitFor(ctx context.Context, p DriverPage, params action.WaitParams) error
	Scroll(ctx context.Context, p DriverPage, params action.ScrollParams) error
}

// ResourceSample is one point-in-time memory/CPU reading for a launched
// browser instance, the input to the recycling engine's Resource axis
// (spec §4.3).
type ResourceSample struct {
	MemoryMB   float64
	CPUPercent float64
}

// ResourceSampler is an optional capability a Driver backend can implement
// when it has a real, per-instance resource reading available (e.g. the
// Docker backend's container stats API). Backends that can't report a real
// per-instance reading simply don't implement it; the resource governor
// falls back to a process-wide approximation for those (pool/resourcegovernor.go).
type ResourceSampler interface {
	Resources(ctx context.Context, h DriverHandle) (ResourceSample, error)
}
