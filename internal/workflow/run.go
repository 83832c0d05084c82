package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/relearn/internal/apperr"
)

// Defaults for the orchestrator knobs. ChunkSize and ChunkDelay bound the
// OCR request rate; ReviveLimit is the largest batch the revive branch will
// move back in one run.
const (
	DefaultChunkSize   = 3
	DefaultChunkDelay  = time.Second
	DefaultReviveLimit = 100
	DefaultHeader      = "Daily relearn images"
)

// Runner composes the collaborators into the end-to-end relearn pipeline.
// A Runner is single-shot: Run executes one pass and returns its Outcome.
type Runner struct {
	Storage   Storage
	Notifier  Notifier
	Store     Store
	Extractor Extractor // nil disables the OCR sub-path

	ImageCount  int
	ChunkSize   int
	ChunkDelay  time.Duration
	ReviveLimit int
	Header      string
}

// linked pairs a sampled candidate with its public link.
type linked struct {
	cand Candidate
	link string
}

// Run executes one relearn pass.
//
// Fatal errors (listing, unprocessed filtering) abort before any side
// effect and are returned as an error. Everything from link creation
// onward is best-effort per item: failures are recorded in the Outcome and
// degrade its status to partial instead of aborting. No retries happen
// within a run; a retry is simply the next scheduled run.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	imageCount := r.ImageCount
	if imageCount <= 0 {
		imageCount = 5
	}
	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkDelay := r.ChunkDelay
	if chunkDelay <= 0 {
		chunkDelay = DefaultChunkDelay
	}
	reviveLimit := r.ReviveLimit
	if reviveLimit <= 0 {
		reviveLimit = DefaultReviveLimit
	}
	header := r.Header
	if header == "" {
		header = DefaultHeader
	}

	// Step 1: resolve the unprocessed candidate set.
	candidates, err := r.Storage.ListCandidates(ctx)
	if err != nil {
		return nil, &apperr.ProviderError{Op: "list candidates", Err: err}
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	unprocessedIDs, err := r.Store.FilterUnprocessed(ctx, ids)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "filter unprocessed", Err: err}
	}
	unprocessed := make(map[string]bool, len(unprocessedIDs))
	for _, id := range unprocessedIDs {
		unprocessed[id] = true
	}
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if unprocessed[c.ID] {
			eligible = append(eligible, c)
		}
	}

	// Step 2: nothing left to relearn, revive the archive instead.
	if len(eligible) == 0 {
		fmt.Printf("No unprocessed candidates, reviving archived files...\n")
		report, err := r.Storage.ReviveArchived(ctx, reviveLimit)
		if err != nil {
			return nil, &apperr.ProviderError{Op: "revive archived", Err: err}
		}
		outcome := &Outcome{Kind: KindRevived, Status: StatusSuccess, Revived: &report}
		for _, f := range report.Failed {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("revive %s: %s", f.ID, f.Reason))
		}
		if len(report.Failed) > 0 {
			outcome.Status = StatusPartial
		}
		return outcome, nil
	}

	// Step 3: sample up to imageCount candidates.
	sampled := sampleCandidates(eligible, imageCount)
	fmt.Printf("Sampled %d of %d unprocessed candidates\n", len(sampled), len(eligible))

	outcome := &Outcome{Kind: KindRelearned, Status: StatusSuccess}
	degrade := func(err error) {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.Status = StatusPartial
	}

	// Step 4: get-or-create public links. A failure drops the candidate
	// from the rest of the run but never aborts the batch.
	links := make([]string, len(sampled))
	linkErrs := make([]error, len(sampled))
	forEachChunked(ctx, sampled, chunkSize, 0, func(ctx context.Context, i int, c Candidate) {
		link, err := r.Storage.PublicLink(ctx, c.ID)
		if err != nil {
			linkErrs[i] = &apperr.ProviderError{Op: "create public link", FileID: c.ID, Err: err}
			return
		}
		links[i] = link
	})

	shared := make([]linked, 0, len(sampled))
	for i, c := range sampled {
		if linkErrs[i] != nil {
			degrade(linkErrs[i])
			continue
		}
		shared = append(shared, linked{cand: c, link: links[i]})
	}
	outcome.LinksShared = len(shared)

	// Step 5: publish header + one message per link. Skipped entirely when
	// every link failed; a header announcing zero images is not due.
	if len(shared) > 0 {
		sharedLinks := make([]string, len(shared))
		for i, lc := range shared {
			sharedLinks[i] = lc.link
		}
		sent, err := r.Notifier.PublishLinks(ctx, header, sharedLinks)
		outcome.MessagesSent = sent
		if err != nil {
			degrade(&apperr.NotificationError{Err: err})
		} else if sent < len(sharedLinks)+1 {
			degrade(&apperr.NotificationError{Err: fmt.Errorf("delivered %d of %d messages", sent, len(sharedLinks)+1)})
		}
	}

	// Step 6: per-candidate OCR and persistence, chunked against the OCR
	// provider's quota. Without an Extractor, only the processed record is
	// written.
	outcome.Images = make([]ImageReport, len(shared))
	processedOK := make([]bool, len(shared))
	itemErrs := make([]error, len(shared))

	if r.Extractor != nil {
		forEachChunked(ctx, shared, chunkSize, chunkDelay, func(ctx context.Context, i int, lc linked) {
			outcome.Images[i] = ImageReport{FileID: lc.cand.ID, Name: lc.cand.Name, Link: lc.link}

			data, err := r.Storage.Download(ctx, lc.cand.ID)
			if err != nil {
				itemErrs[i] = &apperr.ProviderError{Op: "download", FileID: lc.cand.ID, Err: err}
				return
			}
			ext, err := r.Extractor.ExtractText(ctx, data, lc.cand.MimeType)
			if err != nil {
				itemErrs[i] = err
				return
			}
			if _, err := r.Store.SaveExtraction(ctx, lc.cand.ID, lc.cand.Name, ext.Text, ext.ExtractedAt); err != nil {
				itemErrs[i] = &apperr.PersistenceError{Op: "save extraction", Err: err}
				return
			}
			outcome.Images[i].Text = ext.Text
			processedOK[i] = true
		})
	} else {
		for i, lc := range shared {
			outcome.Images[i] = ImageReport{FileID: lc.cand.ID, Name: lc.cand.Name, Link: lc.link}
			if _, err := r.Store.RecordProcessed(ctx, lc.cand.ID, lc.cand.Name, time.Now()); err != nil {
				itemErrs[i] = &apperr.PersistenceError{Op: "record processed", Err: err}
				continue
			}
			processedOK[i] = true
		}
	}

	archiveIDs := make([]string, 0, len(shared))
	for i, lc := range shared {
		if itemErrs[i] != nil {
			degrade(itemErrs[i])
			continue
		}
		if processedOK[i] {
			archiveIDs = append(archiveIDs, lc.cand.ID)
		}
	}

	// Step 7: archive the processed files, per-item accounting.
	evacuated := MoveReport{Succeeded: []string{}, Failed: []MoveFailure{}}
	if len(archiveIDs) > 0 {
		evacuated, err = r.Storage.Archive(ctx, archiveIDs)
		if err != nil {
			degrade(&apperr.ProviderError{Op: "archive", Err: err})
		}
		for _, f := range evacuated.Failed {
			degrade(&apperr.ProviderError{Op: "archive", FileID: f.ID, Err: fmt.Errorf("%s", f.Reason)})
		}
		for _, id := range evacuated.Succeeded {
			if err := r.Store.MarkArchived(ctx, id); err != nil {
				degrade(&apperr.PersistenceError{Op: "mark archived", Err: err})
			}
		}
	}
	outcome.Evacuated = &evacuated

	return outcome, nil
}
