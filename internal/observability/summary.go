// Package observability provides formatted output utilities for run summaries.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/relearn/internal/workflow"
)

const (
	// previewLength is how many characters of extracted text are shown.
	previewLength = 200
	// rule separates summary sections.
	rule = "================================"
)

// Printer handles formatted summary output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// PrintBanner prints the run banner before a batch starts.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintBanner(imageCount int) {
	fmt.Fprintln(p.out, "🤖 Relearn Runner")
	fmt.Fprintln(p.out, rule)
	fmt.Fprintf(p.out, "📅 Date: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(p.out, "🖼️  Image count: %d\n", imageCount)
	fmt.Fprintln(p.out, rule)
	fmt.Fprintln(p.out)
}

// PrintSummary prints the execution summary for a completed run.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSummary(outcome *workflow.Outcome, duration time.Duration) {
	if outcome == nil {
		return
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, rule)
	fmt.Fprintln(p.out, "✅ EXECUTION SUMMARY")
	fmt.Fprintln(p.out, rule)
	fmt.Fprintf(p.out, "📊 Status: %s\n", outcome.Status)
	fmt.Fprintf(p.out, "⏱️  Duration: %.1fs\n", duration.Seconds())

	if outcome.Kind == workflow.KindRevived {
		p.printRevived(outcome)
	} else {
		p.printRelearned(outcome)
	}

	if len(outcome.Errors) > 0 {
		fmt.Fprintln(p.out, "\n⚠️  Some operations failed:")
		for _, msg := range outcome.Errors {
			fmt.Fprintf(p.out, "   - %s\n", msg)
		}
	}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printRevived(outcome *workflow.Outcome) {
	moved, failed := 0, 0
	if outcome.Revived != nil {
		moved = len(outcome.Revived.Succeeded)
		failed = len(outcome.Revived.Failed)
	}
	fmt.Fprintf(p.out, "♻️  Revived from saved: %d\n", moved)
	if failed > 0 {
		fmt.Fprintf(p.out, "⚠️  Failed to revive: %d\n", failed)
	}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printRelearned(outcome *workflow.Outcome) {
	fmt.Fprintf(p.out, "📸 Images processed: %d\n", len(outcome.Images))
	fmt.Fprintf(p.out, "🔗 Public links created: %d\n", outcome.LinksShared)
	fmt.Fprintf(p.out, "💬 Slack messages sent: %d\n", outcome.MessagesSent)

	extracted := extractedTexts(outcome.Images)
	if len(extracted) > 0 {
		total := 0
		for _, text := range extracted {
			total += utf8.RuneCountInString(text)
		}
		fmt.Fprintf(p.out, "🔍 OCR extractions: %d\n", len(extracted))
		fmt.Fprintf(p.out, "📝 Total characters extracted: %d\n", total)
		fmt.Fprintf(p.out, "📊 Average characters per image: %d\n", total/len(extracted))
	}

	for i, img := range outcome.Images {
		fmt.Fprintf(p.out, "\n📄 Image %d: %s\n", i+1, img.Name)
		fmt.Fprintf(p.out, "   ID: %s\n", img.FileID)
		if img.Link != "" {
			fmt.Fprintf(p.out, "   Link: %s\n", img.Link)
		}
		if img.Text != "" {
			fmt.Fprintf(p.out, "   OCR Preview: %s\n", preview(img.Text))
			fmt.Fprintf(p.out, "   Characters: %d\n", utf8.RuneCountInString(img.Text))
		}
	}
}

// PrintFailure prints the failure report for a fatally aborted run.
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) PrintFailure(err error, duration time.Duration) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, rule)
	fmt.Fprintln(p.out, "❌ EXECUTION FAILED")
	fmt.Fprintln(p.out, rule)
	fmt.Fprintf(p.out, "Duration before failure: %.1fs\n", duration.Seconds())
	fmt.Fprintf(p.out, "Error: %v\n", err)
}

func extractedTexts(images []workflow.ImageReport) []string {
	var out []string
	for _, img := range images {
		if img.Text != "" {
			out = append(out, img.Text)
		}
	}
	return out
}

// preview flattens newlines and truncates long text for single-line display.
func preview(text string) string {
	flat := strings.ReplaceAll(text, "\n", " ")
	runes := []rune(flat)
	if len(runes) <= previewLength {
		return flat
	}
	return string(runes[:previewLength]) + "..."
}
