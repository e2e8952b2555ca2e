package sync

import "fmt"

// RecordOutcome is the result of pushing one record to the index.
type RecordOutcome struct {
	// ItemID is the stable identity of the record in the index.
	ItemID string
	// Title names the record for humans reading the report.
	Title string
	// Err is nil when the record was upserted.
	Err error
}

// Succeeded reports whether the record made it into the index.
func (o RecordOutcome) Succeeded() bool {
	return o.Err == nil
}

// Report collects per-record outcomes for one sync run. One failing record
// never hides the rest of the batch.
type Report struct {
	Kind     string
	Outcomes []RecordOutcome
}

func (r *Report) record(itemID, title string, err error) {
	r.Outcomes = append(r.Outcomes, RecordOutcome{ItemID: itemID, Title: title, Err: err})
}

// Succeeded counts records that were upserted.
func (r *Report) Succeeded() int {
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts records that were not upserted.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Failures returns the outcomes that carry errors.
func (r *Report) Failures() []RecordOutcome {
	var failed []RecordOutcome
	for _, outcome := range r.Outcomes {
		if !outcome.Succeeded() {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Summary is a one-line account of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d synced, %d failed", r.Kind, r.Succeeded(), r.Failed())
}
