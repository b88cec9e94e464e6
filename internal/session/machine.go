package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/config"
)

// Action is what the caller should do with a message.
type Action int

const (
	Drop       Action = iota // nothing to do
	Reply                    // send Decision.Reply to the message's chat
	ListGroups               // fetch groups and pass them to OfferGroups
	Pipeline                 // run token detection
)

func (a Action) String() string {
	return [...]string{"drop", "reply", "list-groups", "pipeline"}[a]
}

// Decision is the outcome of Handle.
type Decision struct {
	Action Action
	Reply  string
	Reason string // short label used for metrics and logs
}

// Commands holds the accepted spellings of each control command.
type Commands struct {
	Activate   []string
	Deactivate []string
	Status     []string
}

// Options configure a Machine.
type Options struct {
	Owners        []string
	SelfIsOwner   bool
	Commands      Commands
	StaleAfter    time.Duration // 0 disables the backlog check
	DedupCapacity int
	Now           func() time.Time
	Logger        *zap.Logger
}

// OptionsFromConfig converts the session config section.
func OptionsFromConfig(c config.SessionConfig) Options {
	return Options{
		Owners:      c.Owners,
		SelfIsOwner: c.SelfIsOwner,
		Commands: Commands{
			Activate:   c.ActivateAliases,
			Deactivate: c.DeactivateAliases,
			Status:     c.StatusAliases,
		},
		StaleAfter:    time.Duration(c.StaleAfterSeconds) * time.Second,
		DedupCapacity: c.DedupCapacity,
	}
}

type command int

const (
	cmdNone command = iota
	cmdActivate
	cmdDeactivate
	cmdStatus
)

// Machine is the session state machine. All methods are safe for concurrent
// use, though the dispatcher is its only writer.
type Machine struct {
	owners      map[string]struct{}
	selfIsOwner bool
	commands    map[string]command
	staleAfter  time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu          sync.Mutex
	state       State
	dedup       *DedupWindow
	pending     []bus.Group
	pendingChat string
}

// NewMachine creates an unbound session.
func NewMachine(opts Options) *Machine {
	m := &Machine{
		owners:      make(map[string]struct{}, len(opts.Owners)),
		selfIsOwner: opts.SelfIsOwner,
		commands:    make(map[string]command),
		staleAfter:  opts.StaleAfter,
		now:         opts.Now,
		logger:      opts.Logger,
		dedup:       NewDedupWindow(opts.DedupCapacity),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("session")
	for _, o := range opts.Owners {
		if id := StripIdentity(o); id != "" {
			m.owners[id] = struct{}{}
		}
	}
	register := func(c command, aliases []string) {
		for _, a := range aliases {
			if a = strings.TrimSpace(a); a != "" {
				m.commands[a] = c
			}
		}
	}
	register(cmdActivate, opts.Commands.Activate)
	register(cmdDeactivate, opts.Commands.Deactivate)
	register(cmdStatus, opts.Commands.Status)
	return m
}

// StripIdentity reduces a transport identity to its bare account id, e.g.
// "9665xxxx:12@s.whatsapp.net" becomes "9665xxxx".
func StripIdentity(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return strings.TrimPrefix(id, "+")
}

// IsOwner reports whether msg was sent by an allowed controller.
func (m *Machine) IsOwner(msg bus.InboundMessage) bool {
	if msg.FromSelf {
		return m.selfIsOwner
	}
	_, ok := m.owners[StripIdentity(msg.SenderID)]
	return ok
}

// Handle classifies msg and applies any state change it causes. Dedup
// insertion and session mutations happen here, before the caller does any
// slow work.
func (m *Machine) Handle(msg bus.InboundMessage) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dedup.Seen(msg.DedupKey()) {
		return Decision{Action: Drop, Reason: "duplicate"}
	}

	now := m.now()
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = now
	}
	if m.staleAfter > 0 && now.Sub(ts) > m.staleAfter {
		return Decision{Action: Drop, Reason: "stale"}
	}

	text := strings.TrimSpace(msg.Content)
	owner := m.IsOwner(msg)

	switch m.commands[text] {
	case cmdActivate:
		if !owner {
			return Decision{Action: Drop, Reason: "not-owner"}
		}
		return m.activate(msg)
	case cmdDeactivate:
		if !owner {
			return Decision{Action: Drop, Reason: "not-owner"}
		}
		return m.deactivate()
	case cmdStatus:
		return Decision{Action: Reply, Reply: m.summary(), Reason: "status"}
	}

	if owner && m.state.Status() == Unbound && len(m.pending) > 0 && msg.ChatID == m.pendingChat {
		if n, ok := parseSelection(text); ok {
			return m.selectGroup(n, now)
		}
	}

	if msg.FromSelf {
		return Decision{Action: Drop, Reason: "self"}
	}
	if !m.state.Active {
		return Decision{Action: Drop, Reason: "inactive"}
	}
	if msg.ChatID != m.state.BoundGroupID {
		return Decision{Action: Drop, Reason: "other-chat"}
	}
	if ts.Before(m.state.ActivatedAt) {
		return Decision{Action: Drop, Reason: "before-activation"}
	}
	return Decision{Action: Pipeline, Reason: "pipeline"}
}

func (m *Machine) activate(msg bus.InboundMessage) Decision {
	switch m.state.Status() {
	case Active:
		return Decision{Action: Reply, Reply: m.summary(), Reason: "already-active"}
	case BoundInactive:
		m.state.Active = true
		m.state.ActivatedAt = m.now().Truncate(time.Second)
		m.logger.Info("session activated", zap.String("group", m.state.BoundGroupID))
		return Decision{Action: Reply, Reply: "✅ Active in " + m.groupLabel(), Reason: "activated"}
	}
	m.pending = nil
	m.pendingChat = msg.ChatID
	return Decision{Action: ListGroups, Reason: "list-groups"}
}

func (m *Machine) deactivate() Decision {
	prev := m.state.BoundGroupID
	m.state = State{}
	m.pending = nil
	m.pendingChat = ""
	m.logger.Info("session deactivated", zap.String("group", prev))
	return Decision{Action: Reply, Reply: "⏹ Deactivated", Reason: "deactivated"}
}

// OfferGroups stores the listing shown to the owner and returns its text.
// Selection indexes into this snapshot, not a fresh query.
func (m *Machine) OfferGroups(groups []bus.Group) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status() != Unbound {
		return m.summary()
	}
	m.pending = append([]bus.Group(nil), groups...)
	if len(groups) == 0 {
		return "No groups available."
	}
	var b strings.Builder
	b.WriteString("Select a group by number:\n")
	for i, g := range groups {
		fmt.Fprintf(&b, "%d. %s (%d)\n", i+1, g.Name, g.Members)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Machine) selectGroup(n int, now time.Time) Decision {
	g, err := m.bind(n, now)
	if err != nil {
		return Decision{Action: Reply, Reply: fmt.Sprintf("Invalid selection %d, choose 1-%d.", n, len(m.pending)), Reason: "bad-selection"}
	}
	return Decision{Action: Reply, Reply: "✅ Active in " + g.Name, Reason: "activated"}
}

func (m *Machine) bind(n int, now time.Time) (bus.Group, error) {
	if n < 1 || n > len(m.pending) {
		return bus.Group{}, fmt.Errorf("%w: %d", ErrUnknownGroup, n)
	}
	g := m.pending[n-1]
	// Transport timestamps have second resolution.
	m.state = State{
		Active:         true,
		BoundGroupID:   g.ID,
		BoundGroupName: g.Name,
		ActivatedAt:    now.Truncate(time.Second),
	}
	m.pending = nil
	m.pendingChat = ""
	m.logger.Info("session bound", zap.String("group", g.ID), zap.String("name", g.Name))
	return g, nil
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsActiveIn reports whether the session is active and bound to chatID.
func (m *Machine) IsActiveIn(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Active && m.state.BoundGroupID == chatID
}

// Snapshot copies the session for transfer to another Machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:       m.state,
		Dedup:       m.dedup.Keys(),
		Pending:     append([]bus.Group(nil), m.pending...),
		PendingChat: m.pendingChat,
	}
}

// Restore replaces the session with snap.
func (m *Machine) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = snap.State
	m.dedup.restore(snap.Dedup)
	m.pending = append([]bus.Group(nil), snap.Pending...)
	m.pendingChat = snap.PendingChat
}

// Summary returns the human readable state shown by the status command.
func (m *Machine) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary()
}

func (m *Machine) summary() string {
	switch m.state.Status() {
	case Active:
		return fmt.Sprintf("Status: active in %s since %s", m.groupLabel(), m.state.ActivatedAt.UTC().Format(time.RFC3339))
	case BoundInactive:
		return "Status: inactive, bound to " + m.groupLabel()
	default:
		if len(m.pending) > 0 {
			return "Status: inactive, waiting for group selection"
		}
		return "Status: inactive"
	}
}

func (m *Machine) groupLabel() string {
	if m.state.BoundGroupName != "" {
		return m.state.BoundGroupName
	}
	return m.state.BoundGroupID
}

// parseSelection accepts a positive number in ASCII or Arabic-Indic digits.
func parseSelection(s string) (int, bool) {
	if s == "" || len(s) > 12 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		var d rune
		switch {
		case r >= '0' && r <= '9':
			d = r - '0'
		case r >= '٠' && r <= '٩':
			d = r - '٠'
		case r >= '۰' && r <= '۹':
			d = r - '۰'
		default:
			return 0, false
		}
		n = n*10 + int(d)
	}
	return n, true
}
