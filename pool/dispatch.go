package pool

import (
	"context"
	"fmt"
	"time"

	"fleetcore/models/action"
)

// page looks up a previously opened DriverPage by id under the instance lock.
func (l *Lease) page(pageID string) (DriverPage, error) {
	l.inst.mu.Lock()
	defer l.inst.mu.Unlock()
	p, ok := l.inst.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("unknown page %s", pageID)
	}
	return p, nil
}

// Dispatch runs one action against the leased instance's driver, routing to
// the driver method matching act.Type. The executor package is the only
// intended caller; it owns validation, history, and result shaping.
func (l *Lease) Dispatch(ctx context.Context, act action.Action) action.Result {
	start := time.Now()
	res := action.Result{ActionID: act.ID}

	page, err := l.page(act.PageID)
	if err != nil {
		return fail(res, err, start)
	}

	d := l.inst.driver
	switch act.Type {
	case action.TypeNavigate:
		if act.Navigate == nil {
			return fail(res, fmt.Errorf("missing navigate params"), start)
		}
		err = d.Navigate(ctx, page, *act.Navigate)
	case action.TypeClick:
		if act.Click == nil {
			return fail(res, fmt.Errorf("missing click params"), start)
		}
		err = d.Click(ctx, page, *act.Click)
	case action.TypeType:
		if act.Type_ == nil {
			return fail(res, fmt.Errorf("missing type params"), start)
		}
		err = d.Type(ctx, page, *act.Type_)
	case action.TypeSelect:
		if act.Select == nil {
			return fail(res, fmt.Errorf("missing select params"), start)
		}
		err = d.Select(ctx, page, *act.Select)
	case action.TypeKeyboard:
		if act.Keyboard == nil {
			return fail(res, fmt.Errorf("missing keyboard params"), start)
		}
		err = d.Keyboard(ctx, page, *act.Keyboard)
	case action.TypeMouse:
		if act.Mouse == nil {
			return fail(res, fmt.Errorf("missing mouse params"), start)
		}
		err = d.Mouse(ctx, page, *act.Mouse)
	case action.TypeHover:
		err = d.Hover(ctx, page, act.Selector)
	case action.TypeFocus:
		err = d.Focus(ctx, page, act.Selector)
	case action.TypeBlur:
		err = d.Blur(ctx, page, act.Selector)
	case action.TypeScreenshot:
		var data []byte
		params := ScreenshotParamsOrDefault(act.Screenshot, act.Selector)
		data, err = d.Screenshot(ctx, page, params)
		if err == nil {
			res.Data = data
		}
	case action.TypePDF:
		var data []byte
		params := PDFParamsOrDefault(act.PDF)
		data, err = d.PDF(ctx, page, params)
		if err == nil {
			res.Data = data
		}
	case action.TypeContent:
		var html string
		params := ContentParamsOrDefault(act.Content, act.Selector)
		html, err = d.Content(ctx, page, params.Selector)
		if err == nil {
			res.Data = html
		}
	case action.TypeEvaluate:
		if act.Evaluate == nil {
			return fail(res, fmt.Errorf("missing evaluate params"), start)
		}
		var v interface{}
		v, err = d.Evaluate(ctx, page, act.Evaluate.Script)
		if err == nil {
			res.Data = v
		}
	case action.TypeUpload:
		if act.Upload == nil {
			return fail(res, fmt.Errorf("missing upload params"), start)
		}
		err = d.Upload(ctx, page, *act.Upload)
	case action.TypeDownload:
		if act.Download == nil {
			return fail(res, fmt.Errorf("missing download params"), start)
		}
		var path string
		path, err = d.Download(ctx, page, *act.Download)
		if err == nil {
			res.Data = path
		}
	case action.TypeCookie:
		if act.Cookie == nil {
			return fail(res, fmt.Errorf("missing cookie params"), start)
		}
		var v interface{}
		v, err = d.Cookie(ctx, page, *act.Cookie)
		if err == nil {
			res.Data = v
		}
	case action.TypeWait:
		params := WaitParamsOrDefault(act.Wait, act.Selector)
		err = d.WaitFor(ctx, page, params)
	case action.TypeScroll:
		params := ScrollParamsOrDefault(act.Scroll, act.Selector)
		err = d.Scroll(ctx, page, params)
	default:
		err = fmt.Errorf("unknown action type %q", act.Type)
	}

	if err != nil {
		return fail(res, err, start)
	}
	res.Success = true
	res.Duration = time.Since(start)
	res.FinishedAt = time.Now()
	return res
}

func fail(res action.Result, err error, start time.Time) action.Result {
	res.Success = false
	res.Error = err.Error()
	res.Duration = time.Since(start)
	res.FinishedAt = time.Now()
	return res
}

// ScreenshotParamsOrDefault falls back to the action's top-level Selector
// when a caller omits the dedicated params struct.
func ScreenshotParamsOrDefault(p *action.ScreenshotParams, selector string) action.ScreenshotParams {
	if p != nil {
		return *p
	}
	return action.ScreenshotParams{Selector: selector}
}

// PDFParamsOrDefault returns the zero-value params when none were supplied.
func PDFParamsOrDefault(p *action.PDFParams) action.PDFParams {
	if p != nil {
		return *p
	}
	return action.PDFParams{}
}

// WaitParamsOrDefault falls back to the action's top-level Selector.
func WaitParamsOrDefault(p *action.WaitParams, selector string) action.WaitParams {
	if p != nil {
		return *p
	}
	return action.WaitParams{Selector: selector}
}

// ScrollParamsOrDefault falls back to the action's top-level Selector.
func ScrollParamsOrDefault(p *action.ScrollParams, selector string) action.ScrollParams {
	if p != nil {
		return *p
	}
	return action.ScrollParams{Selector: selector}
}

// ContentParamsOrDefault falls back to the action's top-level Selector and
// full-page HTML mode when no dedicated params struct was supplied.
func ContentParamsOrDefault(p *action.ContentParams, selector string) action.ContentParams {
	if p != nil {
		return *p
	}
	return action.ContentParams{Selector: selector, Mode: action.ContentHTML}
}
