package desire

import (
	"time"

	"volition/internal/graph"
	"volition/internal/skill"
)

// Policy is the risk/trust gate for autonomous execution. BlockedRisks
// always win: a blocked risk can never reach an approve verdict, before
// any scoring happens. Auto-approval is the narrower gate on top of an
// approve verdict.
type Policy struct {
	Mode                graph.Mode       `yaml:"mode"`
	AutoApproveStrength float64          `yaml:"auto_approve_strength"`
	AutoApproveRisks    []RiskLevel      `yaml:"auto_approve_risks"`
	BlockedRisks        []RiskLevel      `yaml:"blocked_risks"`
	MaxAutoTrust        skill.TrustLevel `yaml:"max_auto_trust"`
	StrengthHalfLife    time.Duration    `yaml:"strength_half_life"`
	MaxRevisions        int              `yaml:"max_revisions"`
}

// DefaultPolicy returns the conservative defaults: nothing critical, and
// auto-approval only for weak-blast-radius desires the user has strongly
// accumulated.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                graph.ModeAssisted,
		AutoApproveStrength: 0.8,
		AutoApproveRisks:    []RiskLevel{RiskNone, RiskLow},
		BlockedRisks:        []RiskLevel{RiskCritical},
		MaxAutoTrust:        skill.TrustMedium,
		StrengthHalfLife:    7 * 24 * time.Hour,
		MaxRevisions:        1,
	}
}

// Blocked reports whether a risk level is in the blocked set. An unknown
// risk level is treated as blocked: the planner failing to classify risk
// is not a license to act.
func (p Policy) Blocked(risk RiskLevel) bool {
	if !KnownRisk(risk) {
		return true
	}
	for _, r := range p.BlockedRisks {
		if r == risk {
			return true
		}
	}
	return false
}

// autoApprovable reports whether a risk is in the auto-approve set.
func (p Policy) autoApprovable(risk RiskLevel) bool {
	for _, r := range p.AutoApproveRisks {
		if r == risk {
			return true
		}
	}
	return false
}

// AutoApprove decides whether an approved desire may execute without a
// human. False whenever the verdict is not approve, the mode is not
// autonomous, the strength is below threshold, the risk is outside the
// auto-approve set, or the desire needs more trust than policy delegates.
func (p Policy) AutoApprove(d *Desire, rev *Review) bool {
	if rev == nil || rev.Verdict != VerdictApprove {
		return false
	}
	if p.Mode != graph.ModeAutonomous {
		return false
	}
	if d.Strength < p.AutoApproveStrength {
		return false
	}
	if !p.autoApprovable(rev.Risk) {
		return false
	}
	if !p.MaxAutoTrust.AtLeast(d.RequiredTrust) {
		return false
	}
	return true
}
