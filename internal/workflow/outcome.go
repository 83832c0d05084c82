package workflow

// Kind discriminates the two terminal branches of a run.
type Kind string

// Run kinds.
const (
	// KindRevived means no candidates existed and archived files were
	// moved back to the active pool instead.
	KindRevived Kind = "revived"
	// KindRelearned means candidates were sampled, shared and archived.
	KindRelearned Kind = "relearned"
)

// Status summarizes how cleanly a run went.
type Status string

// Run statuses.
const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ImageReport describes one sampled image in the outcome, including the
// extracted text when OCR ran and succeeded.
type ImageReport struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Link   string `json:"link,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Outcome is the discriminated result of one orchestrator run. A run
// produces either the revived branch or the relearned branch, never both.
type Outcome struct {
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	// Revived carries the per-file revive accounting (kind == revived).
	Revived *MoveReport `json:"revived,omitempty"`

	// Relearned-branch fields (kind == relearned).
	LinksShared  int           `json:"links_shared,omitempty"`
	MessagesSent int           `json:"messages_sent,omitempty"`
	Evacuated    *MoveReport   `json:"evacuated,omitempty"`
	Images       []ImageReport `json:"images,omitempty"`

	// Errors lists every non-fatal per-item failure recorded during the
	// run, in the order it occurred.
	Errors []string `json:"errors,omitempty"`
}
