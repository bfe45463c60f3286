package types

// Recognition is the classifier's answer for one face crop. Lower distance
// means a closer match.
type Recognition struct {
	CandidateID string  `json:"candidate_id"`
	Distance    float64 `json:"distance"`
}

// Outcome is what the admission gate did with a recognition.
type Outcome string

const (
	OutcomeMarked          Outcome = "marked"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeAlreadyMarked   Outcome = "already_marked"
	OutcomeUnknownIdentity Outcome = "unknown_identity"
	OutcomeTentative       Outcome = "tentative"
	OutcomeUnrecognized    Outcome = "unrecognized"
)

// Admission is the full result of admitting one recognition.
type Admission struct {
	Outcome     Outcome `json:"outcome"`
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name,omitempty"`
	Distance    float64 `json:"distance"`
	ArchivedAs  string  `json:"archived_as,omitempty"`
}
