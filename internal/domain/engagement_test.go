package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestViewDurationSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		end      time.Time
		expected int64
	}{
		{"whole seconds", start.Add(5 * time.Second), 5},
		{"floors fractions", start.Add(5*time.Second + 999*time.Millisecond), 5},
		{"same instant", start, 0},
		{"clock skew never negative", start.Add(-3 * time.Second), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.ViewDurationSeconds(start, tt.end))
		})
	}
	assert.Equal(t, int64(0), domain.ViewDurationSeconds(time.Time{}, start))
}

func TestEngagementRecord_FinalizeIsMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := domain.NewEngagement("dev1", "art-42", start, domain.EngagementMeta{Referrer: "home"})

	rec.Finalize(start.Add(10 * time.Second))
	assert.Equal(t, int64(10), rec.ViewDurationSeconds)

	// A late, skewed finalize must not shrink the stored duration.
	rec.Finalize(start.Add(4 * time.Second))
	assert.Equal(t, int64(10), rec.ViewDurationSeconds)
	assert.Equal(t, "home", rec.Referrer)
}

func TestEngagementRecord_RestartAndApply(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := domain.NewEngagement("dev1", "art-42", start, domain.EngagementMeta{})
	rec.Finalize(start.Add(30 * time.Second))

	later := start.Add(time.Hour)
	rec.Restart(later, domain.EngagementMeta{SessionID: "s-2"})
	assert.Equal(t, int64(0), rec.ViewDurationSeconds)
	assert.Equal(t, later, rec.ViewStartTime)
	assert.Equal(t, start, rec.CreatedAt)
	assert.Equal(t, "s-2", rec.SessionID)

	neg := int64(-5)
	rec.Apply(domain.EngagementPatch{DurationSeconds: &neg}, later)
	assert.Equal(t, int64(0), rec.ViewDurationSeconds)
}

func TestIdentity_Validate(t *testing.T) {
	assert.ErrorIs(t, domain.Identity{}.Validate(), domain.ErrIdentityMissing)
	assert.ErrorIs(t, domain.Identity{DeviceID: "bad device!"}.Validate(), domain.ErrInvalidIdentity)
	assert.NoError(t, domain.Identity{DeviceID: "dev1"}.Validate())
	assert.NoError(t, domain.Identity{UserID: uuid.New()}.Validate())
}

func TestTransient(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := domain.Transient("load list", cause)
	assert.ErrorIs(t, err, domain.ErrTransientStore)
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, domain.Transient("noop", nil))
}
