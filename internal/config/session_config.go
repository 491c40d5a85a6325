package config

import (
	"os"
	"time"
)

const (
	maxSessionDurationVar   = "MAX_SESSION_DURATION_MINUTES"
	inactivityTimeoutVar    = "INACTIVITY_TIMEOUT_MINUTES"
	activityThrottleVar     = "ACTIVITY_THROTTLE_SECONDS"
	revalidateIntervalVar   = "REVALIDATE_INTERVAL_SECONDS"
	restoreAnnounceDelayVar = "RESTORE_ANNOUNCE_DELAY_MILLIS"
	expirationNoticeVar     = "SHOW_EXPIRATION_NOTICE"
)

type SessionConfig interface {
	// GetMaxSessionDuration is the absolute ceiling on session age
	// measured from login, regardless of activity.
	GetMaxSessionDuration() time.Duration

	// GetInactivityTimeout is the maximum allowed gap since the last
	// recorded user activity. Materially shorter than the ceiling.
	GetInactivityTimeout() time.Duration

	// GetActivityThrottle bounds how often interaction signals may
	// write the last-activity timestamp.
	GetActivityThrottle() time.Duration

	// GetRevalidateInterval is the low-frequency safety-net
	// re-validation period. Event-driven triggers are primary.
	GetRevalidateInterval() time.Duration

	// GetRestoreAnnounceDelay is how long a tab waits after restoring
	// context before announcing the restoration to peers.
	GetRestoreAnnounceDelay() time.Duration

	GetShowExpirationNotice() bool
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

func (s Session) GetMaxSessionDuration() time.Duration {
	// 24 hours unless configured otherwise.
	return s.minutes(maxSessionDurationVar, s.fileMaxSessionMinutes(), 24*60)
}

func (s Session) GetInactivityTimeout() time.Duration {
	return s.minutes(inactivityTimeoutVar, s.fileInactivityMinutes(), 30)
}

func (s Session) GetActivityThrottle() time.Duration {
	secs := GetEnvInt(activityThrottleVar, 0)
	if secs <= 0 && s.file != nil {
		secs = s.file.Session.ActivityThrottleSeconds
	}
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

func (s Session) GetRevalidateInterval() time.Duration {
	secs := GetEnvInt(revalidateIntervalVar, 0)
	if secs <= 0 && s.file != nil {
		secs = s.file.Session.RevalidateIntervalSeconds
	}
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

func (s Session) GetRestoreAnnounceDelay() time.Duration {
	millis := GetEnvInt(restoreAnnounceDelayVar, 0)
	if millis <= 0 && s.file != nil {
		millis = s.file.Session.RestoreAnnounceDelayMillis
	}
	if millis <= 0 {
		millis = 500
	}
	return time.Duration(millis) * time.Millisecond
}

func (s Session) GetShowExpirationNotice() bool {
	if v := os.Getenv(expirationNoticeVar); v != "" {
		return v != "false" && v != "0"
	}
	if s.file != nil && s.file.Session.ShowExpirationNotice != nil {
		return *s.file.Session.ShowExpirationNotice
	}
	return true
}

func (s Session) minutes(envVar string, fileMinutes, defaultMinutes int) time.Duration {
	mins := GetEnvInt(envVar, 0)
	if mins <= 0 {
		mins = fileMinutes
	}
	if mins <= 0 {
		mins = defaultMinutes
	}
	return time.Duration(mins) * time.Minute
}

func (s Session) fileMaxSessionMinutes() int {
	if s.file == nil {
		return 0
	}
	return s.file.Session.MaxSessionDurationMinutes
}

func (s Session) fileInactivityMinutes() int {
	if s.file == nil {
		return 0
	}
	return s.file.Session.InactivityTimeoutMinutes
}
