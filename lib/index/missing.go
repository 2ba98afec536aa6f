package index

import "time"

const (
	// missingLogLimit is the number of missing inverse mapping warnings
	// logged before further warnings are suppressed
	missingLogLimit = 10
	// missingLogCooldown is how long warnings stay suppressed
	missingLogCooldown = 5 * time.Minute
)

// missingLimiter rate limits the warnings logged when an inverse mapping that
// should exist is not found. Callers hold the index lock.
type missingLimiter struct {
	now        func() time.Time
	count      int
	mutedAt    time.Time
	suppressed int
}

// allow reports whether a warning may be logged. last is true for the final
// warning before the limiter mutes, resumed is the number of warnings that
// were dropped since the limiter muted (non zero only on the first warning
// after the cooldown).
func (m *missingLimiter) allow() (ok, last bool, resumed int) {
	if m.count >= missingLogLimit {
		if m.now().Sub(m.mutedAt) < missingLogCooldown {
			m.suppressed++
			return false, false, 0
		}
		resumed = m.suppressed
		m.count, m.suppressed = 0, 0
	}
	m.count++
	if m.count == missingLogLimit {
		m.mutedAt = m.now()
		return true, true, resumed
	}
	return true, false, resumed
}
