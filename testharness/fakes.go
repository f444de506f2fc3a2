// Package testharness provides fakes shared across package test suites:
// a fake browser driver and a controllable clock, so each package's tests
// don't need to hand-roll an identical fake driver (spec §8 test tooling, ambient per house style).
package testharness

import (
	"context"
	"sync"
	"time"

	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
	"fleetcore/pool"
)

// FakeDriver is an in-memory pool.Driver: no real browser process, just
// enough bookkeeping for executor/pool tests to assert against.
type FakeDriver struct {
	mu        sync.Mutex
	NameValue string
	Contents  string // returned by Content for an empty/unmatched selector
	BySelector map[string]string // selector -> fragment, for element-scoped Content calls
	FailNext  map[string]error
	Calls     []string
}

// NewFakeDriver builds a fake driver named "fake" with an empty call log.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{NameValue: "fake", Contents: "<html><body><p>ok</p></body></html>", FailNext: map[string]error{}}
}

func (f *FakeDriver) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

type fakeHandle struct{}
type fakePage struct{}

func (f *FakeDriver) Name() string { return f.NameValue }

func (f *FakeDriver) Launch(ctx context.Context, opts pool.LaunchOptions) (pool.DriverHandle, error) {
	if err := f.record("launch"); err != nil {
		return nil, err
	}
	return &fakeHandle{}, nil
}

func (f *FakeDriver) Version(ctx context.Context, h pool.DriverHandle) (string, error) { return "1.0", nil }

func (f *FakeDriver) NewPage(ctx context.Context, h pool.DriverHandle, caps browsercontext.Capabilities) (pool.DriverPage, error) {
	if err := f.record("new_page"); err != nil {
		return nil, err
	}
	return &fakePage{}, nil
}

func (f *FakeDriver) ClosePage(ctx context.Context, p pool.DriverPage) error { return f.record("close_page") }
func (f *FakeDriver) HealthCheck(ctx context.Context, h pool.DriverHandle) error { return f.record("health") }
func (f *FakeDriver) Close(ctx context.Context, h pool.DriverHandle) error { return f.record("close") }

func (f *FakeDriver) Navigate(ctx context.Context, p pool.DriverPage, params action.NavigateParams) error {
	return f.record("navigate")
}
func (f *FakeDriver) Click(ctx context.Context, p pool.DriverPage, params action.ClickParams) error {
	return f.record("click")
}
func (f *FakeDriver) Type(ctx context.Context, p pool.DriverPage, params action.TypeParams) error {
	return f.record("type")
}
func (f *FakeDriver) Select(ctx context.Context, p pool.DriverPage, params action.SelectParams) error {
	return f.record("select")
}
func (f *FakeDriver) Keyboard(ctx context.Context, p pool.DriverPage, params action.KeyboardParams) error {
	return f.record("keyboard")
}
func (f *FakeDriver) Mouse(ctx context.Context, p pool.DriverPage, params action.MouseParams) error {
	return f.record("mouse")
}
func (f *FakeDriver) Hover(ctx context.Context, p pool.DriverPage, selector string) error {
	return f.record("hover")
}
func (f *FakeDriver) Focus(ctx context.Context, p pool.DriverPage, selector string) error {
	return f.record("focus")
}
func (f *FakeDriver) Blur(ctx context.Context, p pool.DriverPage, selector string) error {
	return f.record("blur")
}
func (f *FakeDriver) Screenshot(ctx context.Context, p pool.DriverPage, params action.ScreenshotParams) ([]byte, error) {
	if err := f.record("screenshot"); err != nil {
		return nil, err
	}
	return []byte("fake-png-bytes"), nil
}
func (f *FakeDriver) PDF(ctx context.Context, p pool.DriverPage, params action.PDFParams) ([]byte, error) {
	if err := f.record("pdf"); err != nil {
		return nil, err
	}
	return []byte("fake-pdf-bytes"), nil
}
func (f *FakeDriver) Content(ctx context.Context, p pool.DriverPage, selector string) (string, error) {
	if err := f.record("content"); err != nil {
		return "", err
	}
	if selector != "" {
		if frag, ok := f.BySelector[selector]; ok {
			return frag, nil
		}
	}
	return f.Contents, nil
}
func (f *FakeDriver) Evaluate(ctx context.Context, p pool.DriverPage, script string) (interface{}, error) {
	if err := f.record("evaluate"); err != nil {
		return nil, err
	}
	return "evaluated", nil
}
func (f *FakeDriver) Upload(ctx context.Context, p pool.DriverPage, params action.UploadParams) error {
	return f.record("upload")
}
func (f *FakeDriver) Download(ctx context.Context, p pool.DriverPage, params action.DownloadParams) (string, error) {
	if err := f.record("download"); err != nil {
		return "", err
	}
	return "/tmp/fake-download", nil
}
func (f *FakeDriver) Cookie(ctx context.Context, p pool.DriverPage, params action.CookieParams) (interface{}, error) {
	return nil, f.record("cookie")
}
func (f *FakeDriver) WaitFor(ctx context.Context, p pool.DriverPage, params action.WaitParams) error {
	return f.record("wait")
}
func (f *FakeDriver) Scroll(ctx context.Context, p pool.DriverPage, params action.ScrollParams) error {
	return f.record("scroll")
}

// Clock is a controllable time source for deterministic TTL/expiry tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
