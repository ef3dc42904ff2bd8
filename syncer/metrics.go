package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Run summary components recorded by the worker loops.
const (
	ComponentDetector = "detector"
	ComponentEngine   = "engine"
	ComponentMonitor  = "monitor"
)

const runSummaryTTL = 24 * time.Hour

// MetricsStore keeps the latest run summary per component in Redis so the
// API can report worker health without sharing process memory.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore creates a run summary store. A nil client disables
// recording; all methods become no-ops.
func NewMetricsStore(client *redis.Client) *MetricsStore {
	return &MetricsStore{redis: client}
}

func runSummaryKey(component string) string {
	return fmt.Sprintf("runs:%s:last", component)
}

// RecordRun stores a component's latest run summary. Best effort; a Redis
// failure is logged and never fails the run itself.
func (m *MetricsStore) RecordRun(ctx context.Context, component string, summary interface{}) {
	if m == nil || m.redis == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[metrics] marshal %s summary: %v", component, err)
		return
	}
	if err := m.redis.Set(ctx, runSummaryKey(component), data, runSummaryTTL).Err(); err != nil {
		log.Printf("[metrics] record %s summary: %v", component, err)
	}
}

// LastRuns returns the most recent summary per component. Components with no
// recorded run within the TTL are absent from the map.
func (m *MetricsStore) LastRuns(ctx context.Context) (map[string]json.RawMessage, error) {
	runs := make(map[string]json.RawMessage)
	if m == nil || m.redis == nil {
		return runs, nil
	}
	for _, component := range []string{ComponentDetector, ComponentEngine, ComponentMonitor} {
		data, err := m.redis.Get(ctx, runSummaryKey(component)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s summary: %w", component, err)
		}
		runs[component] = json.RawMessage(data)
	}
	return runs, nil
}
