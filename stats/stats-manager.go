package stats

import (
	"sync"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/casepipe/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

// PipelineStatsManager holds the StepWatcher of each step in a pipeline run, in the order the steps were added.
type PipelineStatsManager struct {
	mu           sync.Mutex
	log          logger.Logger
	mapStepStats *ordered_map.OrderedMap
}

func NewPipelineStats(log logger.Logger) *PipelineStatsManager {
	return &PipelineStatsManager{log: log, mapStepStats: ordered_map.NewOrderedMap()}
}

// AddStepWatcher creates a new StepWatcher and saves it under stepName.
func (t *PipelineStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	sw := NewStepWatcher(t.log, stepName)
	t.mu.Lock()
	t.mapStepStats.Set(stepName, sw)
	t.mu.Unlock()
	return sw
}

// GetStats implements interface StatsFetcher{}.
func (t *PipelineStatsManager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	statsList := make([]Stats, 0, t.mapStepStats.Len())
	iter := t.mapStepStats.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each step...
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
