package model

// SequenceStep is one email of a multi-step outreach sequence.
// StepNumber starts at 1; DelayDays is counted from the previous send.
type SequenceStep struct {
	SequenceID string `db:"sequence_id" json:"sequenceId"`
	StepNumber int    `db:"step_number" json:"stepNumber"`
	DelayDays  int    `db:"delay_days" json:"delayDays"`
	Subject    string `db:"subject" json:"subject"`
	Body       string `db:"body" json:"body"`
}
