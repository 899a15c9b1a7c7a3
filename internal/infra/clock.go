package infra

import (
	"time"

	"github.com/focusshift/shiftd/internal/domain"
)

// SystemClock implements domain.Clock using wall-clock time.
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
