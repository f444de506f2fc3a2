// Package executor dispatches actions against leased browser instances:
// validation, the dispatch itself, optimizer hints, and bounded per-context
// history (spec §4.4).
package executor

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fleetcore/apxerrors"
	"fleetcore/models/action"
)

const (
	minTimeout     = 100 * time.Millisecond
	maxTimeout     = 5 * time.Minute
	maxUploadFiles = 16

	maxTypeTextLength  = 10000
	maxScrollDelta     = 1000
	minCoordinate      = 0
	maxCoordinate      = 10000
	minDragSteps       = 1
	maxDragSteps       = 100
	maxUploadFileBytes = 100 * 1024 * 1024
)

// allowedUploadMIMEs is the permitted-extension allow-list for upload
// validation; extensions are matched case-insensitively against the path.
var allowedUploadMIMEs = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".csv": true, ".json": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

// Validate checks an action's shape before it ever reaches a driver,
// collapsing every field failure into one apxerrors.Error (spec §4.5 —
// validation errors are always CategoryValidation, never browser errors).
func Validate(act action.Action) error {
	v := apxerrors.NewValidationErrs()

	if act.SessionID == "" {
		v.Add("session_id", "required")
	}
	if act.PageID == "" {
		v.Add("page_id", "required")
	}
	if act.Timeout != 0 && (act.Timeout < minTimeout || act.Timeout > maxTimeout) {
		v.Add("timeout", "must be between 100ms and 5m")
	}

	switch act.Type {
	case action.TypeNavigate:
		validateNavigate(v, act.Navigate)
	case action.TypeClick:
		validateSelectorParams(v, selectorOf(act.Click))
	case action.TypeType:
		validateType(v, act.Type_)
	case action.TypeSelect:
		validateSelect(v, act.Select)
	case action.TypeKeyboard:
		if act.Keyboard == nil || act.Keyboard.Key == "" {
			v.Add("keyboard.key", "required")
		}
	case action.TypeMouse:
		validateMouse(v, act.Mouse)
	case action.TypeHover, action.TypeFocus, action.TypeBlur:
		validateSelectorParams(v, act.Selector)
	case action.TypeScreenshot, action.TypePDF:
		// no required fields beyond the common ones
	case action.TypeContent:
		validateContent(v, act.Content, act.Selector)
	case action.TypeEvaluate:
		if act.Evaluate == nil || strings.TrimSpace(act.Evaluate.Script) == "" {
			v.Add("evaluate.script", "required")
		}
	case action.TypeUpload:
		validateUpload(v, act.Upload)
	case action.TypeDownload:
		if act.Download == nil || act.Download.Selector == "" {
			v.Add("download.selector", "required")
		}
	case action.TypeCookie:
		validateCookie(v, act.Cookie)
	case action.TypeWait:
		validateWait(v, act.Wait)
	case action.TypeScroll:
		validateScroll(v, act.Scroll)
	default:
		v.Add("type", "unknown action type")
	}

	return v.Err()
}

func selectorOf(c *action.ClickParams) string {
	if c == nil {
		return ""
	}
	return c.Selector
}

func validateSelectorParams(v *apxerrors.ValidationErrs, selector string) {
	if selector == "" {
		v.Add("selector", "required")
		return
	}
	if _, err := SanitizeSelector(selector); err != nil {
		v.Add("selector", err.Error())
	}
}

func validateContent(v *apxerrors.ValidationErrs, p *action.ContentParams, topLevelSelector string) {
	selector := topLevelSelector
	mode := action.ContentHTML
	if p != nil {
		if p.Selector != "" {
			selector = p.Selector
		}
		if p.Mode != "" {
			mode = p.Mode
		}
	}
	if mode == action.ContentHTML {
		return
	}
	if selector == "" {
		v.Add("content.selector", "required for element-scoped content modes")
		return
	}
	if _, err := SanitizeSelector(selector); err != nil {
		v.Add("content.selector", err.Error())
	}
}

func validateScroll(v *apxerrors.ValidationErrs, p *action.ScrollParams) {
	if p == nil {
		return
	}
	if p.Selector != "" {
		if _, err := SanitizeSelector(p.Selector); err != nil {
			v.Add("scroll.selector", err.Error())
		}
	}
	if abs(p.DeltaX) > maxScrollDelta {
		v.Add("scroll.delta_x", "magnitude must not exceed 1000")
	}
	if abs(p.DeltaY) > maxScrollDelta {
		v.Add("scroll.delta_y", "magnitude must not exceed 1000")
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func validateNavigate(v *apxerrors.ValidationErrs, p *action.NavigateParams) {
	if p == nil || p.URL == "" {
		v.Add("navigate.url", "required")
		return
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.Add("navigate.url", "must be an absolute http(s) URL")
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.Add("navigate.url", "only http/https are permitted")
	}
}

func validateType(v *apxerrors.ValidationErrs, p *action.TypeParams) {
	if p == nil || p.Selector == "" {
		v.Add("type.selector", "required")
		return
	}
	if _, err := SanitizeSelector(p.Selector); err != nil {
		v.Add("type.selector", err.Error())
	}
	if len(p.Text) > maxTypeTextLength {
		v.Add("type.text", "must not exceed 10000 characters")
	}
	if p.DelayMS < 0 || p.DelayMS > 5000 {
		v.Add("type.delay_ms", "must be between 0 and 5000")
	}
}

func validateSelect(v *apxerrors.ValidationErrs, p *action.SelectParams) {
	if p == nil || p.Selector == "" {
		v.Add("select.selector", "required")
		return
	}
	if len(p.Values) == 0 {
		v.Add("select.values", "at least one value required")
	}
}

func validateMouse(v *apxerrors.ValidationErrs, p *action.MouseParams) {
	if p == nil {
		v.Add("mouse", "required")
		return
	}
	switch p.Op {
	case "move", "down", "up":
		validateCoordinate(v, "mouse.x", p.X)
		validateCoordinate(v, "mouse.y", p.Y)
	case "drag":
		validateCoordinate(v, "mouse.x", p.X)
		validateCoordinate(v, "mouse.y", p.Y)
		validateCoordinate(v, "mouse.to_x", p.ToX)
		validateCoordinate(v, "mouse.to_y", p.ToY)
		if p.Steps < minDragSteps || p.Steps > maxDragSteps {
			v.Add("mouse.steps", "must be between 1 and 100")
		}
	default:
		v.Add("mouse.op", "must be one of move, down, up, drag")
	}
}

func validateCoordinate(v *apxerrors.ValidationErrs, field string, coord int) {
	if coord < minCoordinate || coord > maxCoordinate {
		v.Add(field, "must be between 0 and 10000")
	}
}

func validateUpload(v *apxerrors.ValidationErrs, p *action.UploadParams) {
	if p == nil || p.Selector == "" {
		v.Add("upload.selector", "required")
		return
	}
	if _, err := SanitizeSelector(p.Selector); err != nil {
		v.Add("upload.selector", err.Error())
	}
	if len(p.FilePaths) == 0 {
		v.Add("upload.file_paths", "at least one file required")
		return
	}
	if len(p.FilePaths) > maxUploadFiles {
		v.Add("upload.file_paths", "too many files in one upload")
	}
	if !p.Multiple && len(p.FilePaths) > 1 {
		v.Add("upload.file_paths", "input is not multiple; only one file is permitted")
	}
	for _, fp := range p.FilePaths {
		validateUploadPath(v, fp)
	}
}

func validateUploadPath(v *apxerrors.ValidationErrs, fp string) {
	if strings.Contains(fp, "..") {
		v.Add("upload.file_paths", "path traversal is not permitted")
		return
	}
	if !filepath.IsAbs(fp) {
		v.Add("upload.file_paths", "must be an absolute path")
		return
	}
	info, err := os.Stat(fp)
	if err != nil {
		v.Add("upload.file_paths", "file does not exist or is not readable: "+fp)
		return
	}
	if info.IsDir() {
		v.Add("upload.file_paths", "must be a regular file: "+fp)
		return
	}
	if f, err := os.Open(fp); err != nil {
		v.Add("upload.file_paths", "file is not readable: "+fp)
	} else {
		f.Close()
	}
	if info.Size() > maxUploadFileBytes {
		v.Add("upload.file_paths", "file exceeds the upload size limit")
	}
	if !allowedUploadMIMEs[strings.ToLower(filepath.Ext(fp))] {
		v.Add("upload.file_paths", "file type is not permitted: "+fp)
	}
}

func validateCookie(v *apxerrors.ValidationErrs, p *action.CookieParams) {
	if p == nil {
		v.Add("cookie", "required")
		return
	}
	switch p.Op {
	case "get", "set", "delete", "clear":
	default:
		v.Add("cookie.op", "must be one of get, set, delete, clear")
	}
	if p.Op == "set" && p.Name == "" {
		v.Add("cookie.name", "required when op=set")
	}
}

func validateWait(v *apxerrors.ValidationErrs, p *action.WaitParams) {
	if p == nil {
		return
	}
	if p.Selector == "" && p.Duration == 0 {
		v.Add("wait", "either selector or duration is required")
	}
	if p.Duration < 0 || p.Duration > maxTimeout {
		v.Add("wait.duration", "out of range")
	}
}
