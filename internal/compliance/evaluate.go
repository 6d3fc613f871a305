// Package compliance derives a document's overall compliance label from its
// agreement, submission, and posting statuses. It holds no state and hits no
// storage, so results are freely cacheable.
package compliance

import "github.com/veridoc/veridoc/internal/agreement"

// Label is the derived, human-facing compliance summary.
type Label string

const (
	FullyCompliant             Label = "fully_compliant"
	SubmissionOKPostingPending Label = "submission_ok_posting_pending"
	SubmissionOKNotPosted      Label = "submission_ok_not_posted"
	PostedSubmissionFailed     Label = "posted_submission_failed"
	BothFailed                 Label = "both_failed"
	PostedNoSubmissionRequired Label = "posted_no_submission_required"
	SubmissionPending          Label = "submission_pending"
	Pending                    Label = "pending"
)

// Evaluate applies the compliance decision table. The table is ordered and
// the first matching rule wins; changing rule order changes which signal
// dominates, so treat it as part of the contract.
func Evaluate(agreementStatus agreement.Status, submission agreement.SubmissionStatus, posting agreement.PostingStatus) Label {
	switch {
	case submission == agreement.SubmissionSubmitted && posting == agreement.PostingPosted:
		return FullyCompliant
	case submission == agreement.SubmissionSubmitted && posting == agreement.PostingNeedsReview:
		return SubmissionOKPostingPending
	case submission == agreement.SubmissionSubmitted && posting == agreement.PostingUnposted:
		return SubmissionOKNotPosted
	case submission == agreement.SubmissionError && posting == agreement.PostingPosted:
		return PostedSubmissionFailed
	case submission == agreement.SubmissionError && posting == agreement.PostingUnposted:
		return BothFailed
	case (submission == agreement.SubmissionNone || submission == "") && posting == agreement.PostingPosted:
		return PostedNoSubmissionRequired
	case submission == agreement.SubmissionPending:
		return SubmissionPending
	default:
		return Pending
	}
}
