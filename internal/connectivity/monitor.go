// Package connectivity watches reachability of the remote exam service. The
// monitor probes a lightweight endpoint on an interval, reacts to kernel
// network interface events, and reports edge transitions to subscribers.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
)

// State is what the monitor currently believes about the network.
type State struct {
	Online  bool
	Since   time.Time
	LastErr string
}

// Listener receives edge transitions. It is invoked from the monitor's
// goroutine; keep it quick.
type Listener func(online bool)

// HTTPDoer matches *http.Client so tests can substitute transports.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Monitor performs reachability probes and publishes online/offline edges.
// Transitions to online are debounced: the link must stay up for the
// configured window before subscribers hear about it, so a flapping network
// does not thrash the uploader.
type Monitor struct {
	probeURL     string
	interval     time.Duration
	timeout      time.Duration
	debounce     time.Duration
	httpClient   HTTPDoer
	logger       *slog.Logger
	useNetlink   bool
	nlWatcher    *netlinkWatcher
	onlineCheckC chan struct{}

	mu        sync.Mutex
	state     State
	known     bool
	listeners []Listener
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
}

// NewMonitor builds a monitor from the connectivity configuration.
func NewMonitor(cfg config.Connectivity, logger *slog.Logger) *Monitor {
	m := &Monitor{
		probeURL:     cfg.ProbeURL,
		interval:     time.Duration(cfg.ProbeInterval) * time.Second,
		timeout:      time.Duration(cfg.ProbeTimeout) * time.Second,
		debounce:     time.Duration(cfg.DebounceSeconds) * time.Second,
		httpClient:   &http.Client{},
		logger:       logging.NewComponentLogger(logger, "connectivity"),
		useNetlink:   cfg.NetlinkEvents,
		onlineCheckC: make(chan struct{}, 1),
	}
	return m
}

// WithHTTPClient swaps the probe transport. Intended for tests.
func (m *Monitor) WithHTTPClient(doer HTTPDoer) *Monitor {
	m.httpClient = doer
	return m
}

// WithTiming overrides the probe cadence. Intended for tests that need
// sub-second intervals.
func (m *Monitor) WithTiming(interval, timeout, debounce time.Duration) *Monitor {
	m.interval = interval
	m.timeout = timeout
	m.debounce = debounce
	return m
}

// Start launches the probe loop. The first probe runs immediately so the
// daemon knows its state before accepting work.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	if m.useNetlink {
		m.nlWatcher = newNetlinkWatcher(m.logger, m.requestProbe)
		m.nlWatcher.Start(loopCtx)
	}

	go m.loop(loopCtx)
}

// Stop halts probing. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
	if m.nlWatcher != nil {
		m.nlWatcher.Stop()
	}
}

// IsOnline reports the current belief. Before the first probe completes the
// monitor assumes offline.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known && m.state.Online
}

// CurrentState returns a copy of the monitor's state.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener for edge transitions. Listeners added
// after the monitor already knows its state are immediately told the
// current value so nobody starts stale.
func (m *Monitor) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	known := m.known
	online := m.state.Online
	m.mu.Unlock()

	if known {
		listener(online)
	}
}

// requestProbe asks the loop for an immediate probe. Coalesces when one is
// already queued.
func (m *Monitor) requestProbe() {
	select {
	case m.onlineCheckC <- struct{}{}:
	default:
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.probeAndPublish(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAndPublish(ctx)
		case <-m.onlineCheckC:
			m.probeAndPublish(ctx)
		}
	}
}

// probeAndPublish runs one probe and, on an offline to online edge, holds
// the transition through the debounce window with a confirming re-probe.
func (m *Monitor) probeAndPublish(ctx context.Context) {
	online, probeErr := m.probe(ctx)

	m.mu.Lock()
	wasKnown := m.known
	wasOnline := m.state.Online
	m.mu.Unlock()

	if online && wasKnown && !wasOnline && m.debounce > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.debounce):
		}
		online, probeErr = m.probe(ctx)
		if !online {
			m.logger.Debug("online transition did not survive debounce")
		}
	}

	m.publish(online, probeErr)
}

func (m *Monitor) probe(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Any response at all means the service is reachable. Auth and server
	// errors are the uploader's problem, not the network's.
	return resp.StatusCode < 500, nil
}

func (m *Monitor) publish(online bool, probeErr error) {
	m.mu.Lock()
	changed := !m.known || m.state.Online != online
	m.known = true
	if changed {
		m.state.Online = online
		m.state.Since = time.Now()
	}
	if probeErr != nil {
		m.state.LastErr = probeErr.Error()
	} else {
		m.state.LastErr = ""
	}
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("connectivity restored",
			logging.String(logging.FieldEventType, "connectivity_online"),
		)
	} else {
		m.logger.Warn("connectivity lost",
			logging.Error(probeErr),
			logging.String(logging.FieldEventType, "connectivity_offline"),
			logging.String(logging.FieldImpact, "uploads pause until the link returns"),
		)
	}

	for _, listener := range listeners {
		listener(online)
	}
}
