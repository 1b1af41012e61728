package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/umputun/newsvault/pkg/domain"
)

// FormatReport renders a human-readable report of the run with per-stage counts and failing URLs
func FormatReport(res domain.WorkflowResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s, started %s, took %v\n", res.RunID, res.StartedAt.Format(time.RFC3339), res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "feeds:         %d total, %d failed\n", res.FeedsTotal, len(res.FeedErrors))
	fmt.Fprintf(&sb, "collection:    %d collected, %d filtered by limits\n", res.Collected, res.Filtered)
	fmt.Fprintf(&sb, "dedup:         %d removed, %d left\n", res.DedupRemoved, res.DedupSurvivors())
	fmt.Fprintf(&sb, "extraction:    %d success (%d fallback), %d failed\n", res.ExtractionSuccess, res.FallbackUsed,
		len(res.ExtractionFailures))
	fmt.Fprintf(&sb, "summarization: %d success, %d failed, %d retries\n", res.SummarySuccess, len(res.SummaryFailures),
		res.SummaryRetries)
	fmt.Fprintf(&sb, "publication:   %d published, %d duplicates, %d failed\n", res.PublishSuccess, res.PublishDuplicates,
		len(res.PublishFailures))

	if len(res.FeedErrors) > 0 {
		sb.WriteString("\nfeed errors:\n")
		for _, e := range res.FeedErrors {
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", e.FeedName, e.FeedURL, e.Err)
		}
	}
	writeFailures(&sb, "extraction failures", res.ExtractionFailures)
	writeFailures(&sb, "summarization failures", res.SummaryFailures)
	writeFailures(&sb, "publication failures", res.PublishFailures)
	return sb.String()
}

func writeFailures(sb *strings.Builder, title string, failures []domain.StageFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, f := range failures {
		fmt.Fprintf(sb, "  - %s: %s\n", f.URL, f.Reason)
	}
}
