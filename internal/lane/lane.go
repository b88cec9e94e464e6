// Package lane orders reply work per chat.
//
// Each chat gets its own lane. What a lane does with work that arrives while
// earlier work is still running depends on the Mode:
//
//   - Parallel:  no lane at all, every job runs at once
//   - Followup:  jobs run one after another in arrival order (FIFO)
//   - Interrupt: queued jobs are discarded, only the latest one runs next
//
// A lane's worker exits as soon as its queue is empty, so idle chats cost
// nothing.
package lane

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Mode defines the lane processing strategy.
type Mode string

const (
	ModeParallel  Mode = "parallel"
	ModeFollowup  Mode = "followup"
	ModeInterrupt Mode = "interrupt"
)

// ParseMode validates a configured mode. Empty means parallel.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeParallel, nil
	case ModeParallel, ModeFollowup, ModeInterrupt:
		return m, nil
	default:
		return "", fmt.Errorf("unknown lane mode %q", s)
	}
}

// Describe returns a string describing the lane mode.
func (mode Mode) Describe() string {
	switch mode {
	case ModeParallel:
		return "Reply to every message concurrently"
	case ModeFollowup:
		return "Reply to each message of a chat in turn"
	case ModeInterrupt:
		return "Skip queued replies, answer only the latest"
	default:
		return fmt.Sprintf("Unknown mode: %s", string(mode))
	}
}

// Job is one unit of reply work.
type Job func(ctx context.Context)

type item struct {
	ctx context.Context
	job Job
}

type lane struct {
	queue   []item
	running bool
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Mode    Mode `json:"mode"`
	Lanes   int  `json:"lanes"`
	Queued  int  `json:"queued"`
	Dropped int  `json:"dropped"`
}

// Manager runs jobs on per-key lanes.
type Manager struct {
	logger *zap.Logger
	onDrop func(key string, n int)

	mu      sync.Mutex
	mode    Mode
	lanes   map[string]*lane
	dropped int

	wg sync.WaitGroup
}

// Config configures a Manager.
type Config struct {
	Mode   Mode
	Logger *zap.Logger
	// OnDrop is told how many queued jobs Interrupt mode discarded.
	OnDrop func(key string, n int)
}

// NewManager creates a lane manager.
func NewManager(cfg Config) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = ModeParallel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		logger: cfg.Logger.Named("lane"),
		onDrop: cfg.OnDrop,
		mode:   cfg.Mode,
		lanes:  make(map[string]*lane),
	}
}

// SetMode changes the mode for jobs submitted from now on. Lanes already
// draining keep running.
func (m *Manager) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode != m.mode {
		m.logger.Info("lane mode changed", zap.String("from", string(m.mode)), zap.String("to", string(mode)))
		m.mode = mode
	}
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Submit queues job on the lane for key and returns immediately. An empty
// key always runs in parallel.
func (m *Manager) Submit(ctx context.Context, key string, job Job) {
	m.mu.Lock()
	if m.mode == ModeParallel || key == "" {
		m.mu.Unlock()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			job(ctx)
		}()
		return
	}

	l, ok := m.lanes[key]
	if !ok {
		l = &lane{}
		m.lanes[key] = l
	}
	dropped := 0
	if m.mode == ModeInterrupt && len(l.queue) > 0 {
		dropped = len(l.queue)
		clear(l.queue)
		l.queue = l.queue[:0]
		m.dropped += dropped
	}
	l.queue = append(l.queue, item{ctx: ctx, job: job})
	if !l.running {
		l.running = true
		m.wg.Add(1)
		go m.drain(key, l)
	}
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Debug("queued replies superseded", zap.String("key", key), zap.Int("dropped", dropped))
		if m.onDrop != nil {
			m.onDrop(key, dropped)
		}
	}
}

func (m *Manager) drain(key string, l *lane) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(m.lanes, key)
			m.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		m.mu.Unlock()

		next.job(next.ctx)
	}
}

// Stats returns lane manager statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Mode: m.mode, Lanes: len(m.lanes), Dropped: m.dropped}
	for _, l := range m.lanes {
		s.Queued += len(l.queue)
	}
	return s
}

// Wait blocks until every submitted job has finished or been dropped.
func (m *Manager) Wait() {
	m.wg.Wait()
}
