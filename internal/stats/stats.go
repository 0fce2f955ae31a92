// Package stats implements the reservoir-sampling statistics manager:
// a fixed-capacity sample of each container's tuples, refreshed with
// probability capacity/count on every insert, used to estimate
// selectivity for plan costing without scanning whole tables.
//
// Grounded on original queryexe/src/stats/reservoir_stat_manager.rs and
// container_samples.rs: SAMPLE_SIZE-capacity reservoir per container,
// add_sample's "replace at a random index once full" behavior, and the
// JSON (there serde_json) persistence-on-shutdown/reload-on-startup
// lifecycle. Selectivity estimation evaluates the compiled predicate
// bytecode directly against sampled tuples rather than walking an AST,
// matching the original's convert_expr_to_bytecode usage in this path.
package stats

import (
	"encoding/json"
	"math/rand"
	"os"
	"strconv"
	"sync"

	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
)

// SampleSize is the reservoir capacity per container.
const SampleSize = 1024

// ContainerSamples holds one container's reservoir sample and running
// record count.
type ContainerSamples struct {
	Samples     []dtype.Tuple `json:"samples"`
	RecordCount int64         `json:"record_count"`
}

// Manager tracks reservoir samples for every container that has had rows
// inserted through it.
type Manager struct {
	mu    sync.Mutex
	byCID map[container.ID]*ContainerSamples
	rng   *rand.Rand
}

// NewManager creates an empty stat manager. The reservoir PRNG is seeded
// from the CRUSTY_SEED environment variable when set and parseable,
// falling back to a fixed seed so sampling stays reproducible across runs
// by default.
func NewManager() *Manager {
	seed := int64(1)
	if s := os.Getenv("CRUSTY_SEED"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			seed = v
		}
	}
	return &Manager{
		byCID: make(map[container.ID]*ContainerSamples),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// AddSample records tuple as having been inserted into cid, updating the
// reservoir with probability SampleSize/record_count once the reservoir
// is full.
func (m *Manager) AddSample(cid container.ID, tuple dtype.Tuple) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.byCID[cid]
	if !ok {
		cs = &ContainerSamples{}
		m.byCID[cid] = cs
	}
	cs.RecordCount++
	if len(cs.Samples) < SampleSize {
		cs.Samples = append(cs.Samples, tuple)
		return
	}
	p := float64(SampleSize) / float64(cs.RecordCount)
	if m.rng.Float64() < p {
		idx := m.rng.Intn(SampleSize)
		cs.Samples[idx] = tuple
	}
}

// DeletedRecord marks a deletion against cid's running count. Per the
// open-question decision recorded in DESIGN.md, a deletion decrements
// record_count but does not search for and evict the deleted tuple from
// the sample (a "marks-without-refill" policy): a stale sampled tuple
// simply ages out over subsequent AddSample replacements.
func (m *Manager) DeletedRecord(cid container.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.byCID[cid]; ok && cs.RecordCount > 0 {
		cs.RecordCount--
	}
}

// EstimateCountAndSelectivity evaluates predicate against cid's sampled
// tuples and returns the estimated number of matching rows in the whole
// container along with the observed sample selectivity. With no samples
// yet collected, it assumes full selectivity (1.0) over whatever record
// count is known.
func (m *Manager) EstimateCountAndSelectivity(cid container.ID, predicate bytecode.Program) (int64, float64, error) {
	m.mu.Lock()
	cs, ok := m.byCID[cid]
	m.mu.Unlock()
	if !ok || len(cs.Samples) == 0 {
		if ok {
			return cs.RecordCount, 1.0, nil
		}
		return 0, 1.0, nil
	}

	matches := 0
	for _, t := range cs.Samples {
		v, err := bytecode.Eval(predicate, t)
		if err != nil {
			return 0, 0, err
		}
		if v.Type != dtype.Bool {
			return 0, 0, dberr.New(dberr.KindExecution, "selectivity predicate did not evaluate to a boolean")
		}
		if !v.IsNull && v.I64 != 0 {
			matches++
		}
	}
	sel := float64(matches) / float64(len(cs.Samples))
	est := int64(sel * float64(cs.RecordCount))
	return est, sel, nil
}

// RecordCount returns the running count for cid, or 0 if unknown.
func (m *Manager) RecordCount(cid container.ID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.byCID[cid]; ok {
		return cs.RecordCount
	}
	return 0
}

// persisted is the on-disk JSON shape.
type persisted struct {
	ByCID map[container.ID]*ContainerSamples `json:"by_cid"`
}

// SaveToFile persists every container's samples to path as JSON. Intended
// to be called on server shutdown.
func (m *Manager) SaveToFile(path string) error {
	m.mu.Lock()
	snapshot := persisted{ByCID: m.byCID}
	data, err := json.Marshal(snapshot)
	m.mu.Unlock()
	if err != nil {
		return dberr.Wrap(dberr.KindSerialization, "marshal stat manager", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dberr.Wrap(dberr.KindSerialization, "write stat manager file", err)
	}
	return nil
}

// LoadFromFile replaces the manager's samples with the contents of path.
// The reservoir's PRNG is not part of the persisted shape; the manager
// keeps its current PRNG state.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberr.Wrap(dberr.KindSerialization, "read stat manager file", err)
	}
	var snapshot persisted
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return dberr.Wrap(dberr.KindSerialization, "unmarshal stat manager", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot.ByCID == nil {
		snapshot.ByCID = make(map[container.ID]*ContainerSamples)
	}
	m.byCID = snapshot.ByCID
	return nil
}
