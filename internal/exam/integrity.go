package exam

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SignalType identifies one category of environment signal reported by the
// browser during an active attempt.
type SignalType string

const (
	SignalVisibilityLoss SignalType = "visibility"
	SignalFocusLoss      SignalType = "blur"
	SignalWindowMetrics  SignalType = "window_metrics"
	SignalOffline        SignalType = "offline"
	SignalOnline         SignalType = "online"
	SignalReload         SignalType = "reload"
)

// Signal is one observed environment event. Window dimensions accompany
// SignalWindowMetrics only.
type Signal struct {
	Type        SignalType
	OuterWidth  int
	InnerWidth  int
	OuterHeight int
	InnerHeight int
}

// ReloadCounter persists the per-attempt reload count across page reloads.
type ReloadCounter interface {
	IncrReload(ctx context.Context) (int64, error)
}

const (
	defaultArmDelay     = 900 * time.Millisecond
	defaultOfflineGrace = 30 * time.Second
	// devtoolsGapPx is the outer-vs-inner window gap treated as a docked
	// devtools panel. A heuristic, not a security boundary: it only raises
	// the cost of casual inspection.
	devtoolsGapPx = 160
)

// MonitorConfig tunes the integrity monitor. Zero values take the
// defaults above.
type MonitorConfig struct {
	ArmDelay     time.Duration
	OfflineGrace time.Duration
}

// Monitor escalates environment signals toward forced submission. It arms
// only after a short grace delay following start (the start-up UI
// transition itself blurs the window), warns on the first strike and
// force-submits on the second, across all categories. An offline gap
// longer than the grace window force-submits directly: a candidate who
// cannot transmit cannot finish anyway.
type Monitor struct {
	mu sync.Mutex

	store     *Store
	warn      func(reason string)
	terminate func(reason string)
	reloads   ReloadCounter
	log       zerolog.Logger

	armDelay     time.Duration
	offlineGrace time.Duration

	armed        bool
	inert        bool
	devtoolsOpen bool
	offlineSince time.Time

	armTimer     *time.Timer
	offlineTimer *time.Timer
}

// NewMonitor wires a monitor to an attempt. warn routes non-fatal
// notifications; terminate invokes forced submission. Both are called
// outside the monitor's lock. reloads may be nil when reload tracking is
// not available (tests).
func NewMonitor(store *Store, cfg MonitorConfig, reloads ReloadCounter, warn, terminate func(reason string), log zerolog.Logger) *Monitor {
	if cfg.ArmDelay <= 0 {
		cfg.ArmDelay = defaultArmDelay
	}
	if cfg.OfflineGrace <= 0 {
		cfg.OfflineGrace = defaultOfflineGrace
	}
	return &Monitor{
		store:        store,
		warn:         warn,
		terminate:    terminate,
		reloads:      reloads,
		log:          log.With().Str("component", "integrity_monitor").Logger(),
		armDelay:     cfg.ArmDelay,
		offlineGrace: cfg.OfflineGrace,
	}
}

// Arm schedules activation after the grace delay. Called once at attempt
// start.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inert || m.armed || m.armTimer != nil {
		return
	}
	m.armTimer = time.AfterFunc(m.armDelay, func() {
		m.mu.Lock()
		if !m.inert {
			m.armed = true
		}
		m.mu.Unlock()
	})
}

// Detach makes the monitor inert and cancels pending timers. Idempotent;
// always called when the attempt finishes.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inert = true
	m.armed = false
	if m.armTimer != nil {
		m.armTimer.Stop()
		m.armTimer = nil
	}
	if m.offlineTimer != nil {
		m.offlineTimer.Stop()
		m.offlineTimer = nil
	}
}

// Observe processes one environment signal. Signals arriving before the
// monitor is armed, or after it went inert, are dropped.
func (m *Monitor) Observe(ctx context.Context, sig Signal) {
	m.mu.Lock()
	if m.inert || !m.armed || m.store.Finished() {
		m.mu.Unlock()
		return
	}

	switch sig.Type {
	case SignalVisibilityLoss:
		m.mu.Unlock()
		m.strike("tab switch")
	case SignalFocusLoss:
		m.mu.Unlock()
		m.strike("window blur or minimize")
	case SignalWindowMetrics:
		m.observeWindowMetrics(sig) // unlocks
	case SignalOffline:
		m.observeOffline() // unlocks
	case SignalOnline:
		m.offlineSince = time.Time{}
		if m.offlineTimer != nil {
			m.offlineTimer.Stop()
			m.offlineTimer = nil
		}
		m.mu.Unlock()
	case SignalReload:
		m.mu.Unlock()
		m.observeReload(ctx)
	default:
		m.mu.Unlock()
		m.log.Warn().Str("signal", string(sig.Type)).Msg("Unknown signal type")
	}
}

// observeWindowMetrics applies the devtools heuristic: a persistent
// outer-vs-inner gap above the threshold. Level-triggered — one strike per
// transition from below to above, not one per poll.
func (m *Monitor) observeWindowMetrics(sig Signal) {
	gap := sig.OuterWidth - sig.InnerWidth
	if h := sig.OuterHeight - sig.InnerHeight; h > gap {
		gap = h
	}

	suspicious := gap > devtoolsGapPx
	wasOpen := m.devtoolsOpen
	m.devtoolsOpen = suspicious
	m.mu.Unlock()

	if suspicious && !wasOpen {
		m.strike("devtools suspected")
	}
}

func (m *Monitor) observeOffline() {
	if !m.offlineSince.IsZero() {
		m.mu.Unlock()
		return
	}
	m.offlineSince = time.Now()
	m.offlineTimer = time.AfterFunc(m.offlineGrace, m.offlineExpired)
	m.mu.Unlock()

	m.warn("connection lost, reconnect before the grace window ends")
}

// offlineExpired fires when the connection stayed down through the whole
// grace window. This bypasses the two-strike rule.
func (m *Monitor) offlineExpired() {
	m.mu.Lock()
	stillOffline := !m.offlineSince.IsZero() && !m.inert
	if stillOffline {
		m.inert = true
	}
	m.mu.Unlock()

	if stillOffline && !m.store.Finished() {
		m.log.Warn().Msg("Offline past grace window, forcing submission")
		m.terminate("offline too long")
	}
}

// observeReload counts navigation-type reloads across page loads. The
// first is a warning, the second forces submission.
func (m *Monitor) observeReload(ctx context.Context) {
	if m.reloads == nil {
		m.strike("page reload")
		return
	}

	n, err := m.reloads.IncrReload(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Reload counter unavailable, treating as plain strike")
		m.strike("page reload")
		return
	}

	// The persisted counter survives the reload itself; the shared strike
	// count still applies, so a reload on top of an earlier tab-switch
	// strike also terminates.
	if n <= 1 {
		m.strike("page reload")
		return
	}
	m.goInert()
	m.log.Warn().Int64("reloads", n).Msg("Repeated reload, forcing submission")
	m.terminate("repeated page reload")
}

// strike records one violation occurrence. The first across any category
// warns; the second terminates the attempt.
func (m *Monitor) strike(reason string) {
	count := m.store.addStrike()
	m.log.Warn().Str("reason", reason).Int("strikes", count).Msg("Integrity strike")

	switch {
	case count <= 1:
		m.warn(reason)
	default:
		m.goInert()
		m.terminate(reason)
	}
}

func (m *Monitor) goInert() {
	m.mu.Lock()
	m.inert = true
	m.mu.Unlock()
}
