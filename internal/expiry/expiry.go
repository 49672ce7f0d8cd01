package expiry

import (
	"time"

	"unitysales/backend/internal/domain"
)

const (
	Expired    = "EXPIRED"
	NearExpiry = "NEAR_EXPIRY"
	Empty      = "EMPTY"
	Active     = "ACTIVE"
)

// DefaultNearDays is the window in which a batch counts as close to expiring.
const DefaultNearDays = 30

// noExpiryDays stands in for batches without an expiration date.
const noExpiryDays = 999

type Classifier struct {
	NearDays int
	Now      func() time.Time
}

func NewClassifier(nearDays int) Classifier {
	if nearDays <= 0 {
		nearDays = DefaultNearDays
	}
	return Classifier{NearDays: nearDays, Now: func() time.Time { return time.Now().UTC() }}
}

func (c Classifier) Classify(batch domain.Batch) string {
	now := time.Now().UTC()
	if c.Now != nil {
		now = c.Now().UTC()
	}
	today := truncateDay(now)

	daysLeft := float64(noExpiryDays)
	if batch.ExpirationDate != nil {
		exp := truncateDay(batch.ExpirationDate.UTC())
		if exp.Before(today) {
			return Expired
		}
		daysLeft = exp.Sub(today).Hours() / 24
	}
	if daysLeft < float64(c.NearDays) {
		return NearExpiry
	}
	if batch.Stock == 0 {
		return Empty
	}
	return Active
}

// AtRisk reports whether a risk level needs attention.
func AtRisk(level string) bool {
	return level == Expired || level == NearExpiry
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
