package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"unitysales/backend/internal/domain"
)

func fixedClassifier() Classifier {
	now := time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)
	return Classifier{NearDays: 30, Now: func() time.Time { return now }}
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestClassify(t *testing.T) {
	c := fixedClassifier()
	cases := []struct {
		name  string
		batch domain.Batch
		want  string
	}{
		{"expired yesterday", domain.Batch{Stock: 4, ExpirationDate: datePtr(2026, 10, 17)}, Expired},
		{"expires today", domain.Batch{Stock: 4, ExpirationDate: datePtr(2026, 10, 18)}, NearExpiry},
		{"expires in 29 days", domain.Batch{Stock: 4, ExpirationDate: datePtr(2026, 11, 16)}, NearExpiry},
		{"expires in 30 days", domain.Batch{Stock: 4, ExpirationDate: datePtr(2026, 11, 17)}, Active},
		{"expired and empty", domain.Batch{Stock: 0, ExpirationDate: datePtr(2026, 1, 1)}, Expired},
		{"empty without expiry", domain.Batch{Stock: 0}, Empty},
		{"stocked without expiry", domain.Batch{Stock: 12}, Active},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.batch))
		})
	}
}

func TestAtRisk(t *testing.T) {
	assert.True(t, AtRisk(Expired))
	assert.True(t, AtRisk(NearExpiry))
	assert.False(t, AtRisk(Empty))
	assert.False(t, AtRisk(Active))
}

func TestNewClassifierDefaultsWindow(t *testing.T) {
	assert.Equal(t, DefaultNearDays, NewClassifier(0).NearDays)
}
