package models

import "fmt"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a task in s may move to next.
//
// processing -> processing is allowed and carries no state change. Nothing leaves a terminal state.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusCancelled || next == StatusFailed
	case StatusProcessing:
		return next == StatusProcessing || next.Terminal()
	}
	return false
}

// ParseStatus converts a string into a [Status].
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}

// Kind tags the type of work a task performs. The set is open; work functions register new kinds.
type Kind string

const (
	KindFileProcessing   Kind = "file_processing"
	KindWebScraping      Kind = "web_scraping"
	KindPDFDownload      Kind = "pdf_download"
	KindPlaylistDownload Kind = "playlist_download"
)

func (k Kind) String() string { return string(k) }

// Unit is the label used in rates and stage messages for k.
func (k Kind) Unit() string {
	switch k {
	case KindFileProcessing:
		return "files"
	case KindWebScraping:
		return "pages"
	case KindPDFDownload, KindPlaylistDownload:
		return "downloads"
	}
	return "items"
}
