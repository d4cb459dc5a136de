package resilience

import (
	"sync"
	"time"
)

// Status is a service's health as seen from its call outcomes.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const unhealthyAfter = 3

// HealthRecord is one service's entry in a snapshot.
type HealthRecord struct {
	Service             string     `json:"service"`
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	BreakerState        string     `json:"breaker_state,omitempty"`
	Tokens              *float64   `json:"tokens,omitempty"`
}

// HealthSnapshot aggregates every registered service.
type HealthSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Healthy   bool           `json:"healthy"`
	Overall   string         `json:"overall"`
	Services  []HealthRecord `json:"services"`
}

// HealthRegistry tracks per-service call outcomes for operational tooling.
// It never gates calls; the breaker does.
type HealthRegistry struct {
	mu      sync.RWMutex
	records map[string]*HealthRecord
	order   []string
	now     func() time.Time
}

// NewHealthRegistry returns an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{records: make(map[string]*HealthRecord), now: time.Now}
}

// Register adds a service with status unknown. Re-registering is a no-op.
func (h *HealthRegistry) Register(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[service]; ok {
		return
	}
	h.records[service] = &HealthRecord{Service: service, Status: StatusUnknown}
	h.order = append(h.order, service)
}

// MarkSuccess flags the service healthy and clears its failure run.
func (h *HealthRegistry) MarkSuccess(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[service]
	if !ok {
		return
	}
	now := h.now()
	rec.Status = StatusHealthy
	rec.ConsecutiveFailures = 0
	rec.LastSuccess = &now
}

// MarkFailure extends the failure run; the third in a row flags the service unhealthy.
func (h *HealthRegistry) MarkFailure(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[service]
	if !ok {
		return
	}
	rec.ConsecutiveFailures++
	if rec.ConsecutiveFailures >= unhealthyAfter {
		rec.Status = StatusUnhealthy
	}
}

// Snapshot copies all records in registration order.
func (h *HealthRegistry) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := HealthSnapshot{Timestamp: h.now().UTC(), Healthy: true, Services: make([]HealthRecord, 0, len(h.order))}
	for _, name := range h.order {
		rec := *h.records[name]
		if rec.LastSuccess != nil {
			ts := *rec.LastSuccess
			rec.LastSuccess = &ts
		}
		if rec.Status != StatusHealthy {
			snap.Healthy = false
		}
		snap.Services = append(snap.Services, rec)
	}
	snap.Overall = "healthy"
	if !snap.Healthy {
		snap.Overall = "degraded"
	}
	return snap
}
