package statesync

import "time"

const (
	defaultNamespace       = "statesync"
	defaultGCTime          = 5 * time.Minute
	defaultCleanupInterval = time.Minute
	defaultPersistTTL      = 24 * time.Hour
	defaultGenRetention    = 30 * 24 * time.Hour
	defaultRetryBase       = time.Second
	defaultRetryMax        = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
