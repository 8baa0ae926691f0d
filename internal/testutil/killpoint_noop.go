//go:build !crashtest

// Package testutil provides no-op stand-ins for the crashtest-tagged kill
// points in production builds — calls compile to nothing of consequence.
package testutil

// KillPointEnvVar is retained for API parity with the crashtest build.
const KillPointEnvVar = "FOUNTAINSTORE_KILL_POINT"

// SetKillPoint is a no-op in production builds.
func SetKillPoint(_ string) {}

// ClearKillPoint is a no-op in production builds.
func ClearKillPoint() {}

// GetKillPointHitCount always returns 0 in production builds.
func GetKillPointHitCount(_ string) int64 { return 0 }

// ResetKillPointCounts is a no-op in production builds.
func ResetKillPointCounts() {}

// MaybeKill is a no-op in production builds.
func MaybeKill(_ string) {}

// Named kill points.
const (
	KPWALAppend     = "wal_append"
	KPWALFsync      = "wal_fsync"
	KPManifestSave  = "manifest_save"
	KPMemtableFlush = "memtable_flush"
)
