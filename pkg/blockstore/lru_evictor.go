package blockstore

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	evictionPlansPrometheusMetrics sync.Once

	evictionPlanOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tieredcache",
			Subsystem: "evictor",
			Name:      "plan_outcomes_total",
			Help:      "Total number of eviction plan outcomes, by store name and outcome.",
		},
		[]string{"name", "outcome"})

	blocksPlannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tieredcache",
			Subsystem: "evictor",
			Name:      "blocks_planned_total",
			Help:      "Total number of blocks placed into an eviction plan, by store name and action.",
		},
		[]string{"name", "action"})
)

// LRUEvictor is the default Evictor. It consumes the least-recently-
// used ordering already maintained by the caller's access set
// (MetadataView.Order) and greedily selects victims from the dir best
// positioned to satisfy the request, preferring to relocate victims
// to the next lower tier over evicting them outright. Ties within the
// LRU order are already broken by the caller: the store seeds
// newly-discovered blocks in ascending blockId order and otherwise
// orders strictly by access recency, so no two live blocks ever
// compare equal.
type LRUEvictor struct {
	planFound    prometheus.Counter
	planNotFound prometheus.Counter
	moved        prometheus.Counter
	evicted      prometheus.Counter
}

// NewLRUEvictor constructs an LRUEvictor whose Prometheus counters are
// labelled with name.
func NewLRUEvictor(name string) *LRUEvictor {
	evictionPlansPrometheusMetrics.Do(func() {
		prometheus.MustRegister(evictionPlanOutcomesTotal)
		prometheus.MustRegister(blocksPlannedTotal)
	})
	return &LRUEvictor{
		planFound:    evictionPlanOutcomesTotal.WithLabelValues(name, "found"),
		planNotFound: evictionPlanOutcomesTotal.WithLabelValues(name, "not_found"),
		moved:        blocksPlannedTotal.WithLabelValues(name, "moved"),
		evicted:      blocksPlannedTotal.WithLabelValues(name, "evicted"),
	}
}

func (e *LRUEvictor) FreeSpaceWithView(bytesToFree uint64, location Location, view *MetadataView) *EvictionPlan {
	dirs := view.Dirs[location.TierAlias]
	var candidates []DirSnapshot
	for _, d := range dirs {
		if location.DirIndex == ANYDir || d.Dir.Index == location.DirIndex {
			if d.AvailableBytes >= bytesToFree {
				e.planFound.Inc()
				return &EvictionPlan{}
			}
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		e.planNotFound.Inc()
		return nil
	}

	// Prefer the dir that needs to free the fewest additional bytes.
	best := candidates[0]
	for _, d := range candidates[1:] {
		if d.AvailableBytes > best.AvailableBytes {
			best = d
		}
	}
	needed := bytesToFree - best.AvailableBytes

	tierIndex := -1
	for i, t := range view.Tiers {
		if t.Alias == location.TierAlias {
			tierIndex = i
			break
		}
	}
	var lowerTierAlias string
	if tierIndex >= 0 && tierIndex+1 < len(view.Tiers) {
		lowerTierAlias = view.Tiers[tierIndex+1].Alias
	}

	plan := &EvictionPlan{}
	var freed uint64
	for _, blockID := range view.Order {
		if freed >= needed {
			break
		}
		if view.Pinned(blockID) {
			continue
		}
		size, ok := best.BlockSizes[blockID]
		if !ok {
			continue
		}
		if lowerTierAlias != "" {
			if targetDir := findRoomyDir(view.Dirs[lowerTierAlias], size); targetDir != nil {
				plan.ToMove = append(plan.ToMove, PlannedMove{BlockID: blockID, TargetDir: targetDir})
				freed += size
				continue
			}
		}
		plan.ToEvict = append(plan.ToEvict, blockID)
		freed += size
	}

	if freed < needed {
		e.planNotFound.Inc()
		return nil
	}
	e.planFound.Inc()
	e.moved.Add(float64(len(plan.ToMove)))
	e.evicted.Add(float64(len(plan.ToEvict)))
	return plan
}

func findRoomyDir(dirs []DirSnapshot, size uint64) *StorageDir {
	for _, d := range dirs {
		if d.AvailableBytes >= size {
			return d.Dir
		}
	}
	return nil
}

var _ Evictor = (*LRUEvictor)(nil)
