package tracker

import (
	"context"
	"slices"
	"sync"
)

type record struct {
	failures    int
	blacklisted bool
}

// Memory is an in-process Tracker.
type Memory struct {
	threshold int

	mu      sync.Mutex
	records map[string]*record
}

// NewMemory returns an in-process Tracker. A threshold below 1 falls back
// to DefaultThreshold.
func NewMemory(threshold int) *Memory {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Memory{
		threshold: threshold,
		records:   make(map[string]*record),
	}
}

// Threshold returns the configured failure threshold.
func (m *Memory) Threshold() int {
	return m.threshold
}

// RecordFailure implements Tracker.
func (m *Memory) RecordFailure(_ context.Context, domain string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.get(domain)
	r.failures++
	st := Status{Failures: r.failures, Blacklisted: r.blacklisted}
	if !r.blacklisted && r.failures >= m.threshold {
		r.blacklisted = true
		st.Blacklisted = true
		st.Transitioned = true
	}
	return st, nil
}

// RecordSuccess implements Tracker.
func (m *Memory) RecordSuccess(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.records[domain]; ok {
		r.failures = 0
	}
	return nil
}

// IsBlacklisted implements Tracker.
func (m *Memory) IsBlacklisted(_ context.Context, domain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[domain]
	return ok && r.blacklisted, nil
}

// Reset implements Tracker.
func (m *Memory) Reset(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, domain)
	return nil
}

// Blacklisted implements Tracker.
func (m *Memory) Blacklisted(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0)
	for d, r := range m.records {
		if r.blacklisted {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) get(domain string) *record {
	r, ok := m.records[domain]
	if !ok {
		r = &record{}
		m.records[domain] = r
	}
	return r
}
