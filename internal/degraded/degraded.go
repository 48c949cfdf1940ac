// Package degraded decides whether an upstream's recent error rate marks it
// unhealthy.
package degraded

import (
	"time"

	"github.com/kjstillabower/travel-discovery-service/internal/traffic"
)

// Exceeded reports whether api's error rate over window is at or above
// thresholdPct. No recorded calls, a zero window or a zero threshold never
// exceed. The rate is returned as a percentage for logging.
func Exceeded(api string, window time.Duration, thresholdPct int) (bool, float64) {
	if window <= 0 || thresholdPct <= 0 {
		return false, 0
	}
	errs, total := traffic.ErrorRate(api, window)
	if total == 0 {
		return false, 0
	}
	pct := float64(errs) * 100 / float64(total)
	return pct >= float64(thresholdPct), pct
}
