package desire

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Weighting of the combined review score. Safety outweighs alignment on
// purpose: alignment concerns alone should not block, safety concerns
// should.
const (
	alignmentWeight = 0.4
	safetyWeight    = 0.6
)

const reviseThreshold = 0.6

// Synthesize combines the two reviews into one verdict. It is a pure
// function of (policy, plan risk, review approvals, review scores); no
// hidden state influences the result.
//
// The decision table in order: blocked risk rejects before any scoring;
// both reviewers disapproving rejects; safety alone disapproving rejects;
// alignment alone disapproving rejects below combined 0.5 and revises at
// or above it; combined below 0.6 revises; everything else approves.
//
// Missing upstream artifacts (no plan, a missing review) reject with a
// diagnostic reason rather than erroring: the pipeline must degrade to a
// safe terminal state, not crash the host run.
func Synthesize(p Policy, plan *Plan, alignment, safety *ReviewResult) *Review {
	rev := &Review{ID: uuid.NewString()}

	switch {
	case plan == nil:
		rev.Verdict = VerdictReject
		rev.Reasoning = "no plan produced; nothing to evaluate"
		return rev
	case alignment == nil:
		rev.Verdict = VerdictReject
		rev.Risk = plan.EstimatedRisk
		rev.Reasoning = "alignment review missing; rejecting by default"
		return rev
	case safety == nil:
		rev.Verdict = VerdictReject
		rev.Risk = plan.EstimatedRisk
		rev.Reasoning = "safety review missing; rejecting by default"
		return rev
	}

	rev.Risk = plan.EstimatedRisk
	rev.AlignmentScore = alignment.Score
	rev.Concerns = append(append([]string{}, alignment.Concerns...), safety.Concerns...)

	// Policy block precedes scoring entirely.
	if p.Blocked(plan.EstimatedRisk) {
		rev.Verdict = VerdictReject
		rev.Reasoning = fmt.Sprintf("risk %q is blocked by policy", plan.EstimatedRisk)
		return rev
	}

	combined := alignmentWeight*alignment.Score + safetyWeight*safety.Score
	rev.CombinedScore = combined

	switch {
	case !alignment.Approved && !safety.Approved:
		rev.Verdict = VerdictReject
		rev.Reasoning = "both reviewers disapprove"
	case !safety.Approved:
		rev.Verdict = VerdictReject
		rev.Reasoning = "safety reviewer disapproves"
	case !alignment.Approved && combined < 0.5:
		rev.Verdict = VerdictReject
		rev.Reasoning = fmt.Sprintf("alignment disapproves and combined score %.2f is below 0.5", combined)
	case !alignment.Approved:
		rev.Verdict = VerdictRevise
		rev.Reasoning = fmt.Sprintf("alignment disapproves but combined score %.2f allows revision", combined)
	case combined < reviseThreshold:
		rev.Verdict = VerdictRevise
		rev.Reasoning = fmt.Sprintf("combined score %.2f is below the approval threshold", combined)
	default:
		rev.Verdict = VerdictApprove
		rev.Reasoning = fmt.Sprintf("combined score %.2f with both reviewers approving", combined)
	}

	if len(rev.Concerns) > 0 {
		rev.Reasoning += "; concerns: " + strings.Join(rev.Concerns, "; ")
	}
	return rev
}
