package models

// Defaults applied by config when fields are omitted.
const (
	DefaultMaxRetries       = 3
	DefaultBatchSize        = 50
	DefaultSyncSchedule     = "@every 30s"
	DefaultProbeInterval    = "15s"
	DefaultInitialDelay     = "2s"
	DefaultMaxDelay         = "1m"
	DefaultBackoffFactor    = 2.0
	DefaultTransportTimeout = "30s"
)
