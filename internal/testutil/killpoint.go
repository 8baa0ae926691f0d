//go:build crashtest

// Package testutil provides deterministic crash injection for whitebox
// crash-recovery testing.
//
// Kill points let a test harness terminate the process at one of four
// named injection points (wal_append, wal_fsync, manifest_save,
// memtable_flush) and then verify that reopening the store yields a
// state that is either "before the batch" or "after the batch" — never
// a partially-applied one.
//
// Build with kill points enabled:
//
//	go test -tags crashtest ./...
package testutil

import (
	"os"
	"sync"
	"sync/atomic"
)

type killPointState struct {
	target atomic.Value
	armed  atomic.Bool

	mu        sync.Mutex
	hitCounts map[string]int64
}

var globalKillPoint = &killPointState{hitCounts: make(map[string]int64)}

// KillPointEnvVar names the environment variable used to set the kill
// point target before the process starts.
const KillPointEnvVar = "FOUNTAINSTORE_KILL_POINT"

func init() {
	if target := os.Getenv(KillPointEnvVar); target != "" {
		globalKillPoint.target.Store(target)
		globalKillPoint.armed.Store(true)
	}
}

// SetKillPoint arms the given kill point name.
func SetKillPoint(name string) {
	globalKillPoint.target.Store(name)
	globalKillPoint.armed.Store(true)
}

// ClearKillPoint disarms and clears the kill point target.
func ClearKillPoint() {
	globalKillPoint.target.Store("")
	globalKillPoint.armed.Store(false)
}

// GetKillPointHitCount returns how many times a kill point was reached.
func GetKillPointHitCount(name string) int64 {
	globalKillPoint.mu.Lock()
	defer globalKillPoint.mu.Unlock()
	return globalKillPoint.hitCounts[name]
}

// ResetKillPointCounts clears all recorded hit counts.
func ResetKillPointCounts() {
	globalKillPoint.mu.Lock()
	defer globalKillPoint.mu.Unlock()
	globalKillPoint.hitCounts = make(map[string]int64)
}

// MaybeKill exits the process cleanly if name matches the armed target.
func MaybeKill(name string) {
	if !globalKillPoint.armed.Load() {
		return
	}

	globalKillPoint.mu.Lock()
	globalKillPoint.hitCounts[name]++
	globalKillPoint.mu.Unlock()

	if target, _ := globalKillPoint.target.Load().(string); target != "" && target == name {
		os.Exit(0)
	}
}

// Named kill points.
const (
	KPWALAppend     = "wal_append"
	KPWALFsync      = "wal_fsync"
	KPManifestSave  = "manifest_save"
	KPMemtableFlush = "memtable_flush"
)
