// Package connectivity tracks whether the backend is reachable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbolis/survey-kiosk/log"
)

// Signal reports the current online state.
type Signal interface {
	Online() bool
}

// Static is a Signal with a fixed value.
type Static bool

func (s Static) Online() bool { return bool(s) }

// Monitor probes a URL periodically. Any HTTP response, whatever its
// status, counts as online; transport errors count as offline.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client

	online atomic.Bool

	mu          sync.Mutex
	subscribers []func(online bool)
}

var _ Signal = (*Monitor)(nil)

func NewMonitor(url string, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe registers fn to be called on every online/offline transition.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Check probes once, updates the state and returns it.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	if m.online.Swap(online) != online {
		log.WithFields(log.Fields{"online": online, "url": m.url}).Info("connectivity changed")
		m.notify(online)
	}
	return online
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	if m.url == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		log.Warnf("connectivity probe %s: %v", m.url, err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		log.Debugf("connectivity probe %s: %v", m.url, err)
		return false
	}
	resp.Body.Close()
	return true
}

func (m *Monitor) notify(online bool) {
	m.mu.Lock()
	subs := make([]func(bool), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
