package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var fired []string
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	late := m.AfterFunc(5*time.Second, func() { fired = append(fired, "late") })

	m.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(3*time.Second), m.Now())
	assert.Equal(t, 1, m.Pending())

	assert.True(t, late.Stop())
	assert.False(t, late.Stop())
	m.Advance(time.Hour)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManualTimerSeesItsOwnDeadline(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var at time.Time
	m.AfterFunc(time.Second, func() {
		at = m.Now()
		m.AfterFunc(time.Second, func() {})
	})

	m.Advance(10 * time.Second)
	assert.Equal(t, start.Add(time.Second), at)
	assert.Equal(t, 0, m.Pending())
}
