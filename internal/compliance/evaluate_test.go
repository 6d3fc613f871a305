package compliance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/agreement"
)

func TestEvaluateDecisionTable(t *testing.T) {
	cases := []struct {
		name       string
		submission agreement.SubmissionStatus
		posting    agreement.PostingStatus
		want       Label
	}{
		{"submitted and posted", agreement.SubmissionSubmitted, agreement.PostingPosted, FullyCompliant},
		{"submitted needs review", agreement.SubmissionSubmitted, agreement.PostingNeedsReview, SubmissionOKPostingPending},
		{"submitted not posted", agreement.SubmissionSubmitted, agreement.PostingUnposted, SubmissionOKNotPosted},
		{"error but posted", agreement.SubmissionError, agreement.PostingPosted, PostedSubmissionFailed},
		{"error not posted", agreement.SubmissionError, agreement.PostingUnposted, BothFailed},
		{"none posted", agreement.SubmissionNone, agreement.PostingPosted, PostedNoSubmissionRequired},
		{"absent posted", agreement.SubmissionStatus(""), agreement.PostingPosted, PostedNoSubmissionRequired},
		{"pending submission", agreement.SubmissionPending, agreement.PostingUnposted, SubmissionPending},
		{"pending submission posted", agreement.SubmissionPending, agreement.PostingPosted, SubmissionPending},
		{"nothing yet", agreement.SubmissionNone, agreement.PostingUnposted, Pending},
		{"error needs review", agreement.SubmissionError, agreement.PostingNeedsReview, Pending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(agreement.StatusApproved, tc.submission, tc.posting)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateIgnoresAgreementAxis(t *testing.T) {
	// The agreement axis is composed into the label only through the caller;
	// the decision table itself ranks submission and posting signals.
	for _, status := range []agreement.Status{agreement.StatusDraft, agreement.StatusReady, agreement.StatusCancelled} {
		require.Equal(t, FullyCompliant, Evaluate(status, agreement.SubmissionSubmitted, agreement.PostingPosted))
	}
}
