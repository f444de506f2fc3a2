package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"fleetcore/apxerrors"
	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
)

// DockerDriver is the legacy/manual-opt-in backend: full-process container
// isolation instead of browser-context isolation, for operators who need
// stronger tenant boundaries than a shared browser process gives (spec
// §4.0). Grounded on the teacher's services/browser_pool/manager.go.
type DockerDriver struct {
	cli *client.Client
}

// NewDockerDriver connects to the local Docker daemon; returns an error if
// unreachable so the pool can skip registering this backend instead of
// silently degrading (the teacher logs and limps on; here the caller decides).
func NewDockerDriver(ctx context.Context) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerDriver{cli: cli}, nil
}

func (d *DockerDriver) Name() string { return "docker" }

type dockerHandle struct {
	containerID  string
	webdriverURL string
}

type dockerPage struct {
	id string
}

func (d *DockerDriver) image(kind string) string {
	switch kind {
	case "firefox":
		return "seleniarm/standalone-firefox:latest"
	default:
		return "seleniarm/standalone-chromium:latest"
	}
}

func (d *DockerDriver) Launch(ctx context.Context, opts LaunchOptions) (DriverHandle, error) {
	cfg := &container.Config{
		Image:        d.image(opts.BrowserKind),
		ExposedPorts: nat.PortSet{"4444/tcp": {}},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    2 * 1024 * 1024 * 1024,
			CPUShares: 1024,
		},
		AutoRemove:   true,
		PortBindings: nat.PortMap{"4444/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}}},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("start container: %w", err)
	}

	inspect, err := d.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		d.destroy(ctx, resp.ID)
		return nil, fmt.Errorf("inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports["4444/tcp"]
	if len(bindings) == 0 {
		d.destroy(ctx, resp.ID)
		return nil, fmt.Errorf("no port binding for webdriver port")
	}

	return &dockerHandle{
		containerID:  resp.ID,
		webdriverURL: fmt.Sprintf("http://localhost:%s", bindings[0].HostPort),
	}, nil
}

func (d *DockerDriver) Version(ctx context.Context, h DriverHandle) (string, error) {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return "", fmt.Errorf("not a docker handle")
	}
	inspect, err := d.cli.ContainerInspect(ctx, dh.containerID)
	if err != nil {
		return "", err
	}
	return inspect.Image, nil
}

func (d *DockerDriver) NewPage(ctx context.Context, h DriverHandle, caps browsercontext.Capabilities) (DriverPage, error) {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return nil, fmt.Errorf("not a docker handle")
	}
	// The container exposes one WebDriver session per container; "pages"
	// inside it are sessions keyed by the container's own WebDriver URL.
	return &dockerPage{id: dh.webdriverURL}, nil
}

func (d *DockerDriver) ClosePage(ctx context.Context, p DriverPage) error {
	return nil
}

func (d *DockerDriver) HealthCheck(ctx context.Context, h DriverHandle) error {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return fmt.Errorf("not a docker handle")
	}
	inspect, err := d.cli.ContainerInspect(ctx, dh.containerID)
	if err != nil || !inspect.State.Running {
		return fmt.Errorf("container not running")
	}
	return nil
}

// Resources implements ResourceSampler with the one backend that can report
// a real per-instance reading: Docker's container stats API, rather than a
// process-wide approximation (spec §4.3 "Resource-based").
func (d *DockerDriver) Resources(ctx context.Context, h DriverHandle) (ResourceSample, error) {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return ResourceSample{}, fmt.Errorf("not a docker handle")
	}
	resp, err := d.cli.ContainerStats(ctx, dh.containerID, false)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return ResourceSample{}, fmt.Errorf("decode container stats: %w", err)
	}

	memoryMB := float64(stats.MemoryStats.Usage) / (1024 * 1024)

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage)
	cpuPercent := 0.0
	if systemDelta > 0 && cpuDelta > 0 {
		onlineCPUs := float64(stats.CPUStats.OnlineCPUs)
		if onlineCPUs == 0 {
			onlineCPUs = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
		}
		if onlineCPUs == 0 {
			onlineCPUs = 1
		}
		cpuPercent = (cpuDelta / systemDelta) * onlineCPUs * 100
	}

	return ResourceSample{MemoryMB: memoryMB, CPUPercent: cpuPercent}, nil
}

func (d *DockerDriver) destroy(ctx context.Context, containerID string) {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	d.cli.ContainerStop(stopCtx, containerID, container.StopOptions{})
	d.cli.ContainerRemove(stopCtx, containerID, container.RemoveOptions{Force: true})
}

func (d *DockerDriver) Close(ctx context.Context, h DriverHandle) error {
	dh, ok := h.(*dockerHandle)
	if !ok {
		return fmt.Errorf("not a docker handle")
	}
	d.destroy(ctx, dh.containerID)
	return nil
}

// unsupported is returned by every action primitive: the Docker backend
// isolates at the container/WebDriver-session level (spec §4.0) and does not
// speak the CDP-level action protocol the other two backends share.
func unsupported(op string) error {
	return apxerrors.Unavailable("docker driver does not support action: " + op)
}

func (d *DockerDriver) Navigate(ctx context.Context, p DriverPage, params action.NavigateParams) error {
	return unsupported("navigate")
}
func (d *DockerDriver) Click(ctx context.Context, p DriverPage, params action.ClickParams) error {
	return unsupported("click")
}
func (d *DockerDriver) Type(ctx context.Context, p DriverPage, params action.TypeParams) error {
	return unsupported("type")
}
func (d *DockerDriver) Select(ctx context.Context, p DriverPage, params action.SelectParams) error {
	return unsupported("select")
}
func (d *DockerDriver) Keyboard(ctx context.Context, p DriverPage, params action.KeyboardParams) error {
	return unsupported("keyboard")
}
func (d *DockerDriver) Mouse(ctx context.Context, p DriverPage, params action.MouseParams) error {
	return unsupported("mouse")
}
func (d *DockerDriver) Hover(ctx context.Context, p DriverPage, selector string) error {
	return unsupported("hover")
}
func (d *DockerDriver) Focus(ctx context.Context, p DriverPage, selector string) error {
	return unsupported("focus")
}
func (d *DockerDriver) Blur(ctx context.Context, p DriverPage, selector string) error {
	return unsupported("blur")
}
func (d *DockerDriver) Screenshot(ctx context.Context, p DriverPage, params action.ScreenshotParams) ([]byte, error) {
	return nil, unsupported("screenshot")
}
func (d *DockerDriver) PDF(ctx context.Context, p DriverPage, params action.PDFParams) ([]byte, error) {
	return nil, unsupported("pdf")
}
func (d *DockerDriver) Content(ctx context.Context, p DriverPage, selector string) (string, error) {
	return "", unsupported("content")
}
func (d *DockerDriver) Evaluate(ctx context.Context, p DriverPage, script string) (interface{}, error) {
	return nil, unsupported("evaluate")
}
func (d *DockerDriver) Upload(ctx context.Context, p DriverPage, params action.UploadParams) error {
	return unsupported("upload")
}
func (d *DockerDriver) Download(ctx context.Context, p DriverPage, params action.DownloadParams) (string, error) {
	return "", unsupported("download")
}
func (d *DockerDriver) Cookie(ctx context.Context, p DriverPage, params action.CookieParams) (interface{}, error) {
	return nil, unsupported("cookie")
}
func (d *DockerDriver) WaitFor(ctx context.Context, p DriverPage, params action.WaitParams) error {
	return unsupported("wait")
}
func (d *DockerDriver) Scroll(ctx context.Context, p DriverPage, params action.ScrollParams) error {
	return unsupported("scroll")
}
