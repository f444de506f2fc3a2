// Package action defines the typed action taxonomy the executor dispatches
// (spec §4.4 "Action"). Each Type has its own parameter shape; Action carries
// them all and only the one matching Type is meaningful.
package action

import "time"

// Type enumerates the supported action kinds.
type Type string

const (
	TypeNavigate Type = "navigate"
	TypeClick    Type = "click"
	TypeType     Type = "type"
	TypeSelect   Type = "select"
	TypeKeyboard Type = "keyboard"
	TypeMouse    Type = "mouse"
	TypeHover    Type = "hover"
	TypeFocus    Type = "focus"
	TypeBlur     Type = "blur"
	TypeScreenshot Type = "screenshot"
	TypePDF      Type = "pdf"
	TypeContent  Type = "content"
	TypeEvaluate Type = "evaluate"
	TypeUpload   Type = "upload"
	TypeDownload Type = "download"
	TypeCookie   Type = "cookie"
	TypeWait     Type = "wait"
	TypeScroll   Type = "scroll"
)

// Action is one unit of work submitted against a page.
type Action struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	ContextID string        `json:"context_id"`
	PageID    string        `json:"page_id"`
	Type      Type          `json:"type"`
	Timeout   time.Duration `json:"timeout"`

	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`

	Navigate *NavigateParams `json:"navigate,omitempty"`
	Click    *ClickParams    `json:"click,omitempty"`
	Type_    *TypeParams     `json:"type_params,omitempty"`
	Select   *SelectParams   `json:"select,omitempty"`
	Keyboard *KeyboardParams `json:"keyboard,omitempty"`
	Mouse    *MouseParams    `json:"mouse,omitempty"`
	Screenshot *ScreenshotParams `json:"screenshot,omitempty"`
	PDF      *PDFParams      `json:"pdf,omitempty"`
	Content  *ContentParams  `json:"content,omitempty"`
	Evaluate *EvaluateParams `json:"evaluate,omitempty"`
	Upload   *UploadParams   `json:"upload,omitempty"`
	Download *DownloadParams `json:"download,omitempty"`
	Cookie   *CookieParams   `json:"cookie,omitempty"`
	Wait     *WaitParams     `json:"wait,omitempty"`
	Scroll   *ScrollParams   `json:"scroll,omitempty"`
}

type NavigateParams struct {
	URL       string `json:"url"`
	WaitUntil string `json:"wait_until,omitempty"` // load, domcontentloaded, networkidle
}

type ClickParams struct {
	Selector   string `json:"selector"`
	Button     string `json:"button,omitempty"` // left, right, middle
	ClickCount int    `json:"click_count,omitempty"`
}

type TypeParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	DelayMS  int    `json:"delay_ms,omitempty"`
}

type SelectParams struct {
	Selector string   `json:"selector"`
	Values   []string `json:"values"`
}

type KeyboardParams struct {
	Key string `json:"key"`
}

// MouseParams drives pointer movement; Op selects the gesture. A drag
// interpolates Steps intermediate points between (X,Y) and (ToX,ToY) — a
// single step (Steps=1) produces one move straight to the destination.
type MouseParams struct {
	X, Y     int    `json:"x_y"`
	ToX, ToY int    `json:"to_x_y,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Op       string `json:"op"` // move, down, up, drag
}

type ScreenshotParams struct {
	Selector  string `json:"selector,omitempty"`
	FullPage  bool   `json:"full_page,omitempty"`
	Format    string `json:"format,omitempty"` // png, jpeg
}

type PDFParams struct {
	Landscape bool `json:"landscape,omitempty"`
}

// ContentMode selects which variant of a node's content to extract.
type ContentMode string

const (
	ContentHTML        ContentMode = "html"         // whole page HTML, Selector ignored
	ContentElementHTML  ContentMode = "element_html" // outer HTML of the matched element
	ContentElementText  ContentMode = "element_text" // visible text of the matched element
	ContentElementValue ContentMode = "element_value" // form value of the matched element
)

type ContentParams struct {
	Selector string      `json:"selector,omitempty"`
	Mode     ContentMode `json:"mode,omitempty"`
}

type EvaluateParams struct {
	Script string `json:"script"`
}

type UploadParams struct {
	Selector  string   `json:"selector"`
	FilePaths []string `json:"file_paths"`
	Multiple  bool     `json:"multiple,omitempty"` // whether the target input accepts more than one file
}

type DownloadParams struct {
	Selector string `json:"selector"`
}

type CookieParams struct {
	Op     string `json:"op"` // get, set, delete, clear
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
	Domain string `json:"domain,omitempty"`
}

type WaitParams struct {
	Selector string        `json:"selector,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	State    string        `json:"state,omitempty"` // visible, hidden, attached, detached
}

type ScrollParams struct {
	Selector string `json:"selector,omitempty"`
	DeltaX   int    `json:"delta_x,omitempty"`
	DeltaY   int    `json:"delta_y,omitempty"`
}

// Result is the outcome of dispatching an Action. SanitizedSelector records
// the post-sanitization selector actually dispatched, never the raw input,
// so audit logs never carry whatever a caller originally submitted (spec §4.5).
type Result struct {
	ActionID          string        `json:"action_id"`
	Success           bool          `json:"success"`
	Data              interface{}   `json:"data,omitempty"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"duration"`
	FinishedAt        time.Time     `json:"finished_at"`
	SanitizedSelector string        `json:"sanitized_selector,omitempty"`
}
