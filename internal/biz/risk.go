package biz

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// RiskLevel is the severity of an entity's risk assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskCritical RiskLevel = "CRITICAL"
)

func (l RiskLevel) rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskCritical:
		return 2
	default:
		return 0
	}
}

// NoRiskSignal is the only signal allowed on a LOW assessment without a cause.
const NoRiskSignal = "No significant risk signals detected."

// Keyword sets are disjoint and matched in declared order.
var (
	criticalKeywords = []string{"strike", "ban", "recall", "sanction", "seize", "bankruptcy", "fraud", "investigation", "breach"}
	warningKeywords  = []string{"delay", "shortage", "volatile", "drop", "miss", "down", "lawsuit", "fine", "cut"}
)

// Price thresholds in percent.
const (
	severeDropPct     = -5.0
	volatilityDropPct = -0.5
	headlineMaxRunes  = 100
)

// ErrGhostRisk reports an elevated level without a concrete cause.
var ErrGhostRisk = errors.New("elevated risk without explicit signal")

// RiskAssessment is a risk level plus the human-readable cause.
type RiskAssessment struct {
	Level   RiskLevel
	Signal  string
	Keyword string
}

// Validate returns ErrGhostRisk when the level is above LOW but the signal
// does not name a cause.
func (a RiskAssessment) Validate() error {
	switch a.Level {
	case RiskLow, RiskMedium, RiskCritical:
	default:
		return fmt.Errorf("unknown risk level %q", a.Level)
	}
	if a.Level != RiskLow && isGenericSignal(a.Signal) {
		return fmt.Errorf("%w: level %s, signal %q", ErrGhostRisk, a.Level, a.Signal)
	}
	return nil
}

func isGenericSignal(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == NoRiskSignal
}

// Classify maps an optional headline and an optional intraday price change
// to a risk assessment.
//
// Precedence:
//  1. pct < -5: CRITICAL severe drop. A critical keyword replaces the message
//     with the headline, the level stays CRITICAL.
//  2. -5 <= pct < -0.5: MEDIUM volatility. A critical keyword raises to
//     CRITICAL, a warning keyword keeps MEDIUM with the headline as message.
//  3. Otherwise the headline alone decides.
//
// A keyword never lowers the floor set by the price move.
func Classify(text *string, pct *float64) RiskAssessment {
	var headline, lower string
	if text != nil {
		headline = strings.TrimSpace(*text)
		lower = strings.ToLower(headline)
	}
	critical := firstKeyword(lower, criticalKeywords)
	warning := firstKeyword(lower, warningKeywords)

	newsAlert := func() RiskAssessment {
		return RiskAssessment{Level: RiskCritical, Signal: "News Alert: " + truncateRunes(headline, headlineMaxRunes), Keyword: critical}
	}
	potentialIssue := func() RiskAssessment {
		return RiskAssessment{Level: RiskMedium, Signal: "Potential Issue: " + truncateRunes(headline, headlineMaxRunes), Keyword: warning}
	}

	if pct != nil && !math.IsNaN(*pct) {
		switch {
		case *pct < severeDropPct:
			if critical != "" {
				return newsAlert()
			}
			return RiskAssessment{Level: RiskCritical, Signal: fmt.Sprintf("Severe market drop: %.2f%% intraday.", *pct)}
		case *pct < volatilityDropPct:
			if critical != "" {
				return newsAlert()
			}
			if warning != "" {
				return potentialIssue()
			}
			return RiskAssessment{Level: RiskMedium, Signal: fmt.Sprintf("Volatility alert: Stock down %.2f%%.", *pct)}
		}
	}

	if critical != "" {
		return newsAlert()
	}
	if warning != "" {
		return potentialIssue()
	}
	return RiskAssessment{Level: RiskLow, Signal: NoRiskSignal}
}

// EnsureSignal replaces a generic signal on an elevated assessment with reason.
func EnsureSignal(a RiskAssessment, reason string) RiskAssessment {
	if a.Level != RiskLow && isGenericSignal(a.Signal) {
		a.Signal = reason
		a.Keyword = ""
	}
	return a
}

// Escalate raises a to level when level is more severe, naming reason as the
// new signal. A lower or equal level leaves a unchanged.
func Escalate(a RiskAssessment, level RiskLevel, reason string) RiskAssessment {
	if level.rank() > a.Level.rank() {
		a.Level = level
		a.Signal = reason
		a.Keyword = ""
	}
	return EnsureSignal(a, reason)
}

func firstKeyword(lower string, keywords []string) string {
	if lower == "" {
		return ""
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
