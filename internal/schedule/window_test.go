package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	// 2026-03-02 is a Monday.
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestIsWithinLeadTime(t *testing.T) {
	// 9 minutes before start is inside the 10-minute lead.
	assert.True(t, IsWithin(at(8, 51), "09:00", "17:00", nil).Valid)
	assert.False(t, IsWithin(at(8, 49), "09:00", "17:00", nil).Valid)
	assert.True(t, IsWithin(at(12, 0), "09:00", "17:00", nil).Valid)
	assert.True(t, IsWithin(at(17, 0), "09:00", "17:00", nil).Valid)
	assert.False(t, IsWithin(at(17, 1), "09:00", "17:00", nil).Valid)
}

func TestIsWithinWrapAround(t *testing.T) {
	assert.True(t, IsWithin(at(23, 30), "23:00", "01:00", nil).Valid)
	assert.True(t, IsWithin(at(0, 30), "23:00", "01:00", nil).Valid)
	res := IsWithin(at(12, 0), "23:00", "01:00", nil)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "23:00-01:00")
}

func TestIsWithinDays(t *testing.T) {
	assert.True(t, IsWithin(at(12, 0), "09:00", "17:00", []string{"Mon", "Wed"}).Valid)

	res := IsWithin(at(12, 0), "09:00", "17:00", []string{"Sat", "Sun"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "Mon")
	assert.Contains(t, res.Reason, "Sat,Sun")
}

func TestIsWithinDayCaseInsensitive(t *testing.T) {
	assert.True(t, IsWithin(at(12, 0), "09:00", "17:00", []string{"mon"}).Valid)
}

func TestIsWithinMalformedWindow(t *testing.T) {
	assert.False(t, IsWithin(at(12, 0), "9am", "17:00", nil).Valid)
	assert.False(t, IsWithin(at(12, 0), "09:00", "25:00", nil).Valid)
	assert.False(t, IsWithin(at(12, 0), "09:61", "17:00", nil).Valid)
}
