// Package artifact models a pointer to a binary produced by action
// execution (screenshot, PDF, download) and handed off to object storage
// (spec §4.11 "Artifact store").
package artifact

import "time"

// Kind names what produced the artifact.
type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindPDF        Kind = "pdf"
	KindDownload   Kind = "download"
)

// Ref is a pointer to a stored object, never the object bytes themselves.
type Ref struct {
	ID          string    `json:"id" bson:"_id"`
	Kind        Kind      `json:"kind" bson:"kind"`
	SessionID   string    `json:"session_id" bson:"session_id"`
	Bucket      string    `json:"bucket" bson:"bucket"`
	Key         string    `json:"key" bson:"key"`
	ContentType string    `json:"content_type" bson:"content_type"`
	SizeBytes   int64     `json:"size_bytes" bson:"size_bytes"`
	Checksum    string    `json:"checksum" bson:"checksum"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
