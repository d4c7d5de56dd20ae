package crawler

// Outcome is the result of visiting one article URL.
type Outcome string

// Article visit outcomes.
const (
	OutcomeSaved     Outcome = "saved"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// HaltReason explains why a listing walk stopped.
type HaltReason string

// Halt reasons reported in RunSummary.
const (
	HaltFetchFailed    HaltReason = "fetch_failed"
	HaltNoLinks        HaltReason = "no_links"
	HaltRangeExhausted HaltReason = "range_exhausted"
	HaltCanceled       HaltReason = "canceled"
)

// RunSummary reports what a walk did and where it stopped.
type RunSummary struct {
	RunID       string
	PagesProbed int
	LinksFound  int
	Saved       int
	Skipped     int
	Failed      int
	// LastOffset is the last listing offset probed.
	LastOffset int
	HaltReason HaltReason
	// AnyLinks is true when at least one headline link was extracted.
	AnyLinks bool
}

func (s *RunSummary) record(outcome Outcome) {
	switch outcome {
	case OutcomeSaved:
		s.Saved++
	case OutcomeSkipped, OutcomeDuplicate:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}
