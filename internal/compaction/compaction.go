// Package compaction implements the background merger that keeps the
// live SSTable set from growing without bound: a single-tick,
// re-entry-guarded two-mode policy over overlapping table groups.
package compaction

import (
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/manifest"
	"github.com/Fountain-Coach/Fountain-Store/internal/sstable"
)

// BlockSizeForLeveling is the file-size unit used to compute virtual
// levels: level = floor(log2(max(1, size/blockSizeForLeveling))).
const BlockSizeForLeveling = 256 * 1024

// L0PressureThreshold is the L0 table count above which pressure mode
// engages and debt starts accruing.
const L0PressureThreshold = 4

// Table describes one live SSTable as seen by the compactor.
type Table struct {
	ID        string
	Path      string
	SizeBytes int64
	FirstKey  []byte
	LastKey   []byte
	Level     int
}

// LevelStatus summarizes one virtual level for diagnostics.
type LevelStatus struct {
	Level     int   `json:"level"`
	Tables    int   `json:"tables"`
	SizeBytes int64 `json:"sizeBytes"`
}

// Status is the compactor's externally-visible state.
type Status struct {
	Running       bool          `json:"running"`
	PendingTables int           `json:"pendingTables"`
	Levels        []LevelStatus `json:"levels"`
	DebtBytes     int64         `json:"debtBytes"`
}

// StatFunc reports the size of a file in bytes.
type StatFunc func(path string) (int64, error)

// Compactor runs compaction ticks over the tables referenced by a
// manifest, producing new merged SSTables and updating the manifest in
// place. It is safe for concurrent Tick calls: only one tick runs at a
// time, others return immediately.
type Compactor struct {
	dir        string
	manifestSt *manifest.Store
	stat       StatFunc
	logger     logging.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    Status
}

// New creates a compactor that reads/writes tables under dir and updates
// manifestSt on each successful merge.
func New(dir string, manifestSt *manifest.Store, stat StatFunc, logger logging.Logger) *Compactor {
	return &Compactor{
		dir:        dir,
		manifestSt: manifestSt,
		stat:       stat,
		logger:     logging.OrDefault(logger),
	}
}

// Status returns the result of the most recently completed tick.
func (c *Compactor) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Tick runs one compaction pass. Concurrent calls while a tick is already
// running are no-ops.
func (c *Compactor) Tick() error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	defer c.running.Store(false)

	state := c.manifestSt.State()
	tables, err := c.loadTables(state)
	if err != nil {
		return err
	}
	if len(tables) < 2 {
		c.publishStatus(tables, false)
		return nil
	}

	groups := groupByOverlap(tables)
	chosen := selectGroups(groups)

	for _, group := range chosen {
		if err := c.mergeGroup(group, state); err != nil {
			return err
		}
	}

	final, err := c.loadTables(state)
	if err != nil {
		return err
	}
	c.publishStatus(final, false)
	return nil
}

func (c *Compactor) loadTables(state *manifest.State) ([]Table, error) {
	var tables []Table
	for id, path := range state.Tables {
		size, err := c.stat(path)
		if err != nil {
			return nil, err
		}
		r, err := sstable.Open(path, id, nil)
		if err != nil {
			return nil, err
		}
		first := r.FirstKey()
		last, err := r.LastKey()
		r.Close()
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{
			ID:        id,
			Path:      path,
			SizeBytes: size,
			FirstKey:  first,
			LastKey:   last,
			Level:     levelFor(size),
		})
	}
	sort.Slice(tables, func(i, j int) bool { return string(tables[i].FirstKey) < string(tables[j].FirstKey) })
	return tables, nil
}

func levelFor(size int64) int {
	if size <= BlockSizeForLeveling {
		return 0
	}
	l := int(math.Floor(math.Log2(float64(size) / float64(BlockSizeForLeveling))))
	if l < 0 {
		l = 0
	}
	return l
}

func groupByOverlap(tables []Table) [][]Table {
	var groups [][]Table
	var current []Table
	var currentMax []byte

	for _, t := range tables {
		if len(current) == 0 || string(t.FirstKey) <= string(currentMax) {
			current = append(current, t)
			if string(t.LastKey) > string(currentMax) {
				currentMax = t.LastKey
			}
			continue
		}
		groups = append(groups, current)
		current = []Table{t}
		currentMax = t.LastKey
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func selectGroups(groups [][]Table) [][]Table {
	var l0Groups [][]Table
	l0Count := 0
	for _, g := range groups {
		allL0 := true
		for _, t := range g {
			if t.Level != 0 {
				allL0 = false
			}
			if t.Level == 0 {
				l0Count++
			}
		}
		if allL0 && len(g) > 1 {
			l0Groups = append(l0Groups, g)
		}
	}

	if l0Count > L0PressureThreshold && len(l0Groups) > 0 {
		sort.Slice(l0Groups, func(i, j int) bool {
			return groupSize(l0Groups[i]) > groupSize(l0Groups[j])
		})
		if len(l0Groups) > 2 {
			l0Groups = l0Groups[:2]
		}
		return l0Groups
	}

	var overlapping [][]Table
	for _, g := range groups {
		if len(g) > 1 {
			overlapping = append(overlapping, g)
		}
	}
	if len(overlapping) > 2 {
		overlapping = overlapping[:2]
	}
	return overlapping
}

func groupSize(g []Table) int64 {
	var total int64
	for _, t := range g {
		total += t.SizeBytes
	}
	return total
}

func (c *Compactor) mergeGroup(group []Table, state *manifest.State) error {
	var all []sstable.KV
	for _, t := range group {
		r, err := sstable.Open(t.Path, t.ID, nil)
		if err != nil {
			return err
		}
		if err := r.Scan(func(k, v []byte) bool {
			key := append([]byte(nil), k...)
			value := append([]byte(nil), v...)
			all = append(all, sstable.KV{Key: key, Value: value})
			return true
		}); err != nil {
			r.Close()
			return err
		}
		r.Close()
	}

	sort.SliceStable(all, func(i, j int) bool { return string(all[i].Key) < string(all[j].Key) })

	deduped := dedupeKeepLast(all)

	newID := uuid.New().String()
	newPath := c.dir + "/" + newID + ".sst"
	if _, _, err := sstable.Write(newPath, deduped); err != nil {
		return err
	}

	next := state.Clone()
	for _, t := range group {
		delete(next.Tables, t.ID)
	}
	next.Tables[newID] = newPath
	if err := c.manifestSt.Save(next); err != nil {
		return err
	}
	*state = *next

	for _, t := range group {
		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	c.logger.Infof("%smerged %d tables into %s", logging.NSCompaction, len(group), newID)
	return nil
}

// dedupeKeepLast collapses exact key duplicates in a stably-sorted slice,
// keeping the entry that sorted last among duplicates: last-in-wins
// after sort by input order.
func dedupeKeepLast(sorted []sstable.KV) []sstable.KV {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]sstable.KV, 0, len(sorted))
	out = append(out, sorted[0])
	for _, kv := range sorted[1:] {
		if string(kv.Key) == string(out[len(out)-1].Key) {
			out[len(out)-1] = kv
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (c *Compactor) publishStatus(tables []Table, running bool) {
	levels := make(map[int]*LevelStatus)
	var debt int64

	l0Sizes := []int64{}
	for _, t := range tables {
		ls, ok := levels[t.Level]
		if !ok {
			ls = &LevelStatus{Level: t.Level}
			levels[t.Level] = ls
		}
		ls.Tables++
		ls.SizeBytes += t.SizeBytes
		if t.Level == 0 {
			l0Sizes = append(l0Sizes, t.SizeBytes)
		}
	}

	if len(l0Sizes) > L0PressureThreshold {
		sort.Slice(l0Sizes, func(i, j int) bool { return l0Sizes[i] < l0Sizes[j] })
		for _, s := range l0Sizes[L0PressureThreshold:] {
			debt += s
		}
	}

	var out []LevelStatus
	for _, ls := range levels {
		out = append(out, *ls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })

	c.mu.Lock()
	c.last = Status{
		Running:       running,
		PendingTables: len(tables),
		Levels:        out,
		DebtBytes:     debt,
	}
	c.mu.Unlock()
}
