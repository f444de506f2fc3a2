package executor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"fleetcore/models/action"
)

// sanitizeContent parses driver-returned HTML and strips script/style nodes
// before it becomes an ActionResult's Data, per the content action's
// extraction path (spec §4.5). Parse failures fall back to the raw HTML
// rather than failing the action — content extraction is best-effort.
func sanitizeContent(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find("script, style, noscript").Remove()
	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// ExtractText returns the visible text of the sanitized document, collapsing
// runs of whitespace the way a reader extracting page text would expect.
func ExtractText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find("script, style, noscript").Remove()
	text := doc.Text()
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

// ExtractValue returns the first matched form element's current value
// (input/textarea value, or the selected option's value for a select).
func ExtractValue(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	sel := doc.Selection
	if val, ok := sel.Find("select option[selected]").First().Attr("value"); ok {
		return val
	}
	if val, ok := sel.Find("input, textarea").First().Attr("value"); ok {
		return val
	}
	return sel.Find("textarea").First().Text()
}

// contentModeOf resolves which content variant an action asked for,
// defaulting to full-page HTML when no ContentParams were supplied.
func contentModeOf(act action.Action) action.ContentMode {
	if act.Content == nil || act.Content.Mode == "" {
		return action.ContentHTML
	}
	return act.Content.Mode
}

// extractContent applies the requested content mode to the raw HTML a
// driver returned. The driver has already scoped rawHTML to the requested
// selector when one was given (spec §4.5 "element HTML | element text |
// element value"); this step only picks the representation.
func extractContent(rawHTML string, mode action.ContentMode) string {
	switch mode {
	case action.ContentElementText:
		return ExtractText(rawHTML)
	case action.ContentElementValue:
		return ExtractValue(rawHTML)
	default:
		return sanitizeContent(rawHTML)
	}
}
