package pipeline

// Status represents the lifecycle of one document within a run.
type Status string

const (
	StatusSelected          Status = "selected"
	StatusPrompting         Status = "prompting"
	StatusAwaitingInference Status = "awaiting_inference"
	StatusValidating        Status = "validating"
	StatusDeciding          Status = "deciding"
	StatusApplying          Status = "applying"
	StatusApplied           Status = "applied"
	StatusSkipped           Status = "skipped"
	StatusFailed            Status = "failed"
)

// Terminal reports whether the status is an end state for the run.
func (s Status) Terminal() bool {
	switch s {
	case StatusApplied, StatusSkipped, StatusFailed:
		return true
	}
	return false
}
