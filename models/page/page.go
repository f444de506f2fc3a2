// Package page models a single browser tab, the unit actions execute
// against (spec §3 "Page").
package page

import "time"

// Page is a tab owned by a browsing context, in turn owned by a browser
// instance. Handlers serialize access per page; no two actions run
// concurrently against the same page.
type Page struct {
	ID                string    `json:"id" bson:"_id"`
	ContextID         string    `json:"context_id" bson:"context_id"`
	SessionID         string    `json:"session_id" bson:"session_id"`
	BrowserInstanceID string    `json:"browser_instance_id" bson:"browser_instance_id"`
	URL               string    `json:"url" bson:"url"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	LastActivity      time.Time `json:"last_activity" bson:"last_activity"`
}

// Touch records activity on the page, used by idle-based recycling signals.
func (p *Page) Touch(now time.Time, url string) {
	p.LastActivity = now
	if url != "" {
		p.URL = url
	}
}

// Idle reports whether the page has been inactive longer than d.
func (p *Page) Idle(now time.Time, d time.Duration) bool {
	return now.Sub(p.LastActivity) >= d
}
