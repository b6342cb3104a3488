package ledger

import (
	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var largeAmount = decimal.NewFromInt(50000)

// Assessment is the outcome of screening a committed transaction.
type Assessment struct {
	Level   RiskLevel
	Reasons []string
}

func (a Assessment) Suspicious() bool {
	return a.Level != RiskLow
}

// AssessRisk flags unusually large amounts and transactions dated between 23:00 and 06:00.
func AssessRisk(tx *Transaction) Assessment {
	a := Assessment{Level: RiskLow}

	if tx.Amount.GreaterThan(largeAmount) {
		a.Level = RiskHigh
		a.Reasons = append(a.Reasons, "unusually large amount")
	}

	if hour := tx.Date.Hour(); hour < 6 || hour >= 23 {
		if a.Level == RiskLow {
			a.Level = RiskMedium
		}

		a.Reasons = append(a.Reasons, "unusual hour")
	}

	return a
}
