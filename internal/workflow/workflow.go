// Package workflow provides the relearn orchestrator: it sequences
// drive-query, selection, link publication, notification, persistence and
// archival over four collaborator interfaces, and owns the partial-failure
// policy for the run.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Candidate is a storage file eligible for this run's selection. Fetched
// fresh on each run, never persisted directly.
type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// MoveFailure records one file that could not be moved, with the reason.
type MoveFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// MoveReport is the per-item accounting of a batch move. Partial success is
// expected and reported per file, never collapsed into a single error.
type MoveReport struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []MoveFailure `json:"failed"`
}

// Storage is the cloud-storage binding consumed by the orchestrator.
type Storage interface {
	// ListCandidates lists image files currently in the active folder.
	ListCandidates(ctx context.Context) ([]Candidate, error)
	// PublicLink returns a link viewable without authentication, reusing
	// an existing public share when one exists.
	PublicLink(ctx context.Context, fileID string) (string, error)
	// Download returns the raw bytes of a file.
	Download(ctx context.Context, fileID string) ([]byte, error)
	// Archive moves the given files from the active folder to the archive
	// location, reporting success and failure per file.
	Archive(ctx context.Context, fileIDs []string) (MoveReport, error)
	// ReviveArchived moves up to limit archived files back to the active
	// folder, chosen uniformly at random when the archive holds more.
	ReviveArchived(ctx context.Context, limit int) (MoveReport, error)
}

// Notifier is the chat-webhook binding. PublishLinks sends one header
// message plus one message per link and returns the number of messages
// delivered. It returns an error only when nothing was delivered.
type Notifier interface {
	PublishLinks(ctx context.Context, header string, links []string) (int, error)
}

// ExtractionRecord identifies the persisted rows for one OCR'd image.
type ExtractionRecord struct {
	ImageID uuid.UUID
	PostID  uuid.UUID
}

// Store is the persistence binding that tracks which files have been
// processed. All operations are atomic at the single-row level except
// SaveExtraction, which persists its two rows as one logical unit.
type Store interface {
	// FilterUnprocessed returns the subset of ids with no pending
	// processed-image record. Archived-then-revived files count as
	// unprocessed again.
	FilterUnprocessed(ctx context.Context, ids []string) ([]string, error)
	// RecordProcessed upserts a processed-image record for a file.
	RecordProcessed(ctx context.Context, fileID, fileName string, processedAt time.Time) (uuid.UUID, error)
	// SaveExtraction persists the processed-image record and the extracted
	// text together.
	SaveExtraction(ctx context.Context, fileID, fileName, content string, extractedAt time.Time) (ExtractionRecord, error)
	// MarkArchived flips the archived flag on a file's record.
	MarkArchived(ctx context.Context, fileID string) error
}

// Extraction is the result of a successful OCR call.
type Extraction struct {
	Text        string
	ExtractedAt time.Time
}

// Extractor is the OCR binding. A nil Extractor on the Runner disables the
// OCR sub-path entirely.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (Extraction, error)
}
