package executor

import (
	"fmt"
	"strings"

	"fleetcore/models/action"
)

// allowedSelectorChars are every rune a CSS selector legitimately needs:
// identifiers, combinators, attribute-syntax brackets/quotes, and the
// handful of punctuation marks selectors are built from. Anything outside
// this set is rejected rather than stripped, so sanitization never silently
// rewrites a selector into something that matches a different element.
const allowedSelectorChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"#.*_-:()[]=\"'>+~^$| \t\n"

// SanitizeSelector validates a selector against an allow-list and returns
// the canonical (trimmed) form to dispatch, never the raw caller input.
// It rejects anything that looks like it escapes selector syntax into
// script or markup — a closing tag, a script-sequence token — since those
// are the two injection shapes a selector string has no legitimate need for
// (spec §4.5 "Selector sanitization"). Idempotent: sanitizing an already
// sanitized selector returns it unchanged.
func SanitizeSelector(selector string) (string, error) {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return "", fmt.Errorf("selector must not be empty")
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "</") || strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		return "", fmt.Errorf("selector contains disallowed markup or script sequence")
	}

	for _, r := range trimmed {
		if !strings.ContainsRune(allowedSelectorChars, r) {
			return "", fmt.Errorf("selector contains a disallowed character: %q", r)
		}
	}

	return trimmed, nil
}

// sanitizeAction rewrites every selector-bearing field on act to its
// sanitized canonical form and reports the one most relevant to act.Type
// for recording on the result (spec §4.5 — the raw selector is never
// logged, only the sanitized value). Validate must have already accepted
// act, so failures here are unexpected and bubble up rather than silently
// falling back to the raw selector.
func sanitizeAction(act action.Action) (action.Action, string, error) {
	primary := ""

	sanitize := func(s string) (string, error) {
		if s == "" {
			return "", nil
		}
		return SanitizeSelector(s)
	}

	if act.Selector != "" {
		clean, err := sanitize(act.Selector)
		if err != nil {
			return act, "", err
		}
		act.Selector = clean
		primary = clean
	}
	if act.Click != nil && act.Click.Selector != "" {
		clean, err := sanitize(act.Click.Selector)
		if err != nil {
			return act, "", err
		}
		act.Click.Selector = clean
		primary = clean
	}
	if act.Type_ != nil && act.Type_.Selector != "" {
		clean, err := sanitize(act.Type_.Selector)
		if err != nil {
			return act, "", err
		}
		act.Type_.Selector = clean
		primary = clean
	}
	if act.Select != nil && act.Select.Selector != "" {
		clean, err := sanitize(act.Select.Selector)
		if err != nil {
			return act, "", err
		}
		act.Select.Selector = clean
		primary = clean
	}
	if act.Upload != nil && act.Upload.Selector != "" {
		clean, err := sanitize(act.Upload.Selector)
		if err != nil {
			return act, "", err
		}
		act.Upload.Selector = clean
		primary = clean
	}
	if act.Scroll != nil && act.Scroll.Selector != "" {
		clean, err := sanitize(act.Scroll.Selector)
		if err != nil {
			return act, "", err
		}
		act.Scroll.Selector = clean
		primary = clean
	}
	if act.Content != nil && act.Content.Selector != "" {
		clean, err := sanitize(act.Content.Selector)
		if err != nil {
			return act, "", err
		}
		act.Content.Selector = clean
		primary = clean
	}

	return act, primary, nil
}
