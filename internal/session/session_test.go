package session

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/config"
)

const (
	ownerID  = "966500000001@s.whatsapp.net"
	otherID  = "966500000002@s.whatsapp.net"
	ownerDM  = "966500000001@s.whatsapp.net"
	groupOne = "1111@g.us"
	groupTwo = "2222@g.us"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(t *testing.T) (*Machine, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts := OptionsFromConfig(config.DefaultConfig().Session)
	opts.Owners = []string{"966500000001"}
	opts.Now = clk.Now
	return NewMachine(opts), clk
}

var seq int

func msg(clk *clock, chat, sender, text string) bus.InboundMessage {
	seq++
	return bus.InboundMessage{
		Channel:   "whatsapp",
		ID:        fmt.Sprintf("m%d", seq),
		ChatID:    chat,
		SenderID:  sender,
		Content:   text,
		Timestamp: clk.Now(),
	}
}

var groups = []bus.Group{
	{ID: groupOne, Name: "Anime Quiz", Members: 40},
	{ID: groupTwo, Name: "Night Game", Members: 12},
}

// bindSecond runs the full owner flow: .a, listing, then "2".
func bindSecond(t *testing.T, m *Machine, clk *clock) {
	t.Helper()
	d := m.Handle(msg(clk, ownerDM, ownerID, ".a"))
	require.Equal(t, ListGroups, d.Action)
	listing := m.OfferGroups(groups)
	assert.Contains(t, listing, "1. Anime Quiz (40)")
	assert.Contains(t, listing, "2. Night Game (12)")

	d = m.Handle(msg(clk, ownerDM, ownerID, "2"))
	require.Equal(t, Reply, d.Action)
	assert.Contains(t, d.Reply, "Night Game")
}

func TestMachine_OwnerActivatesAndSelects(t *testing.T) {
	m, clk := newMachine(t)
	assert.Equal(t, Unbound, m.State().Status())

	bindSecond(t, m, clk)

	st := m.State()
	assert.True(t, st.Active)
	assert.Equal(t, groupTwo, st.BoundGroupID)
	assert.Equal(t, Active, st.Status())
	assert.Equal(t, clk.Now(), st.ActivatedAt)
	assert.True(t, m.IsActiveIn(groupTwo))
	assert.False(t, m.IsActiveIn(groupOne))
}

func TestMachine_NonOwnerActivateIsSilent(t *testing.T) {
	m, clk := newMachine(t)
	before := m.Snapshot()

	d := m.Handle(msg(clk, groupOne, otherID, ".a"))
	assert.Equal(t, Drop, d.Action)
	assert.Empty(t, d.Reply)
	assert.Equal(t, before.State, m.State())
	assert.Empty(t, m.Snapshot().Pending)
}

func TestMachine_NonOwnerDeactivateIsSilent(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)

	d := m.Handle(msg(clk, groupTwo, otherID, ".x"))
	assert.Equal(t, Drop, d.Action)
	assert.True(t, m.State().Active)
}

func TestMachine_OwnerIdentitySuffixStripped(t *testing.T) {
	m, clk := newMachine(t)
	d := m.Handle(msg(clk, ownerDM, "966500000001:7@s.whatsapp.net", ".a"))
	assert.Equal(t, ListGroups, d.Action)
}

func TestMachine_LocalizedAliases(t *testing.T) {
	m, clk := newMachine(t)
	d := m.Handle(msg(clk, ownerDM, ownerID, ".تفعيل"))
	assert.Equal(t, ListGroups, d.Action)
	m.OfferGroups(groups)
	d = m.Handle(msg(clk, ownerDM, ownerID, "١"))
	require.Equal(t, Reply, d.Action)
	assert.Equal(t, groupOne, m.State().BoundGroupID)

	d = m.Handle(msg(clk, groupOne, otherID, ".حالة"))
	assert.Equal(t, Reply, d.Action)
	assert.Contains(t, d.Reply, "active in Anime Quiz")

	d = m.Handle(msg(clk, ownerDM, ownerID, ".ايقاف"))
	assert.Equal(t, Reply, d.Action)
	assert.Equal(t, Unbound, m.State().Status())
}

func TestMachine_CommandsAreExactAfterTrim(t *testing.T) {
	m, clk := newMachine(t)
	assert.Equal(t, ListGroups, m.Handle(msg(clk, ownerDM, ownerID, "  .a \n")).Action)
	assert.Equal(t, Drop, m.Handle(msg(clk, ownerDM, ownerID, ".A")).Action)
	assert.Equal(t, Drop, m.Handle(msg(clk, ownerDM, ownerID, ".a please")).Action)
}

func TestMachine_StatusAnySender(t *testing.T) {
	m, clk := newMachine(t)
	d := m.Handle(msg(clk, groupOne, otherID, ".status"))
	assert.Equal(t, Reply, d.Action)
	assert.Equal(t, "Status: inactive", d.Reply)
	assert.Equal(t, Unbound, m.State().Status())
}

func TestMachine_DeactivateClearsBinding(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)

	d := m.Handle(msg(clk, ownerDM, ownerID, ".x"))
	assert.Equal(t, Reply, d.Action)
	assert.Equal(t, State{}, m.State())

	// Numbers mean nothing until a new listing is offered.
	d = m.Handle(msg(clk, ownerDM, ownerID, "1"))
	assert.Equal(t, Drop, d.Action)
	assert.Equal(t, Unbound, m.State().Status())
}

func TestMachine_BadSelection(t *testing.T) {
	m, clk := newMachine(t)
	m.Handle(msg(clk, ownerDM, ownerID, ".a"))
	m.OfferGroups(groups)

	d := m.Handle(msg(clk, ownerDM, ownerID, "5"))
	assert.Equal(t, Reply, d.Action)
	assert.Contains(t, d.Reply, "Invalid selection 5")
	assert.Equal(t, Unbound, m.State().Status())

	d = m.Handle(msg(clk, ownerDM, ownerID, "1"))
	assert.Equal(t, Reply, d.Action)
	assert.Equal(t, groupOne, m.State().BoundGroupID)
}

func TestMachine_SelectionOnlyFromOwnerInListingChat(t *testing.T) {
	m, clk := newMachine(t)
	m.Handle(msg(clk, ownerDM, ownerID, ".a"))
	m.OfferGroups(groups)

	assert.Equal(t, Drop, m.Handle(msg(clk, ownerDM, otherID, "1")).Action)
	assert.Equal(t, Drop, m.Handle(msg(clk, groupOne, ownerID, "1")).Action)
	assert.Equal(t, Unbound, m.State().Status())
}

func TestMachine_ActivateWhileActiveReportsStatus(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)
	d := m.Handle(msg(clk, ownerDM, ownerID, ".a"))
	assert.Equal(t, Reply, d.Action)
	assert.Contains(t, d.Reply, "active in Night Game")
}

func TestMachine_PipelineGate(t *testing.T) {
	m, clk := newMachine(t)

	d := m.Handle(msg(clk, groupTwo, otherID, "*غوكو*"))
	assert.Equal(t, Drop, d.Action)
	assert.Equal(t, "inactive", d.Reason)

	bindSecond(t, m, clk)
	clk.Advance(time.Second)

	assert.Equal(t, Pipeline, m.Handle(msg(clk, groupTwo, otherID, "*غوكو*")).Action)
	assert.Equal(t, "other-chat", m.Handle(msg(clk, groupOne, otherID, "*غوكو*")).Reason)

	old := msg(clk, groupTwo, otherID, "*غوكو*")
	old.Timestamp = m.State().ActivatedAt.Add(-time.Second)
	assert.Equal(t, "before-activation", m.Handle(old).Reason)
}

func TestMachine_StaleMessagesDropped(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)
	clk.Advance(time.Minute)

	late := msg(clk, groupTwo, otherID, "*غوكو*")
	late.Timestamp = clk.Now().Add(-31 * time.Second)
	assert.Equal(t, "stale", m.Handle(late).Reason)

	fresh := msg(clk, groupTwo, otherID, "*غوكو*")
	fresh.Timestamp = clk.Now().Add(-29 * time.Second)
	assert.Equal(t, Pipeline, m.Handle(fresh).Action)
}

func TestMachine_DuplicateDelivery(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)

	in := msg(clk, groupTwo, otherID, "*غوكو*")
	assert.Equal(t, Pipeline, m.Handle(in).Action)
	d := m.Handle(in)
	assert.Equal(t, Drop, d.Action)
	assert.Equal(t, "duplicate", d.Reason)
}

func TestMachine_SelfMessages(t *testing.T) {
	m, clk := newMachine(t)

	self := msg(clk, ownerDM, "", ".a")
	self.FromSelf = true
	assert.Equal(t, ListGroups, m.Handle(self).Action)
	m.OfferGroups(groups)

	pick := msg(clk, ownerDM, "", "1")
	pick.FromSelf = true
	m.Handle(pick)
	require.True(t, m.IsActiveIn(groupOne))

	echo := msg(clk, groupOne, "", "*غوكو*")
	echo.FromSelf = true
	assert.Equal(t, "self", m.Handle(echo).Reason)
}

func TestMachine_SelfNotOwnerWhenDisabled(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultConfig().Session)
	opts.SelfIsOwner = false
	m := NewMachine(opts)
	clk := &clock{t: time.Now()}
	self := msg(clk, ownerDM, "", ".a")
	self.FromSelf = true
	assert.Equal(t, Drop, m.Handle(self).Action)
}

func TestMachine_SnapshotRestore(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)
	in := msg(clk, groupTwo, otherID, "*غوكو*")
	m.Handle(in)

	fresh, _ := newMachine(t)
	fresh.Restore(m.Snapshot())

	assert.Equal(t, m.State(), fresh.State())
	assert.Equal(t, "duplicate", fresh.Handle(in).Reason)
}

func TestSnapshot_FileRoundTrip(t *testing.T) {
	m, clk := newMachine(t)
	bindSecond(t, m, clk)
	path := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, SaveSnapshot(path, m.Snapshot()))
	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, groupTwo, snap.State.BoundGroupID)
	assert.True(t, snap.State.ActivatedAt.Equal(m.State().ActivatedAt))

	missing, err := LoadSnapshot(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, Unbound, missing.State.Status())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "unbound", Unbound.String())
	assert.Equal(t, "bound-inactive", BoundInactive.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "bound-inactive", State{BoundGroupID: "g"}.Status().String())
}

// --- DedupWindow ---

func TestDedupWindow_FIFOEviction(t *testing.T) {
	w := NewDedupWindow(3)
	for _, k := range []string{"a", "b", "c"} {
		assert.False(t, w.Seen(k))
	}
	assert.True(t, w.Seen("a"))

	assert.False(t, w.Seen("d")) // evicts a
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []string{"b", "c", "d"}, w.Keys())
	assert.False(t, w.Seen("a"))
}

func TestDedupWindow_NeverExceedsCapacity(t *testing.T) {
	w := NewDedupWindow(DefaultDedupCapacity)
	for i := 0; i < 1000; i++ {
		w.Seen(fmt.Sprintf("k%d", i))
		require.LessOrEqual(t, w.Len(), DefaultDedupCapacity)
	}
	assert.True(t, w.Seen("k999"))
	assert.False(t, w.Seen("k0"))
}

func TestDedupWindow_EmptyKey(t *testing.T) {
	w := NewDedupWindow(2)
	assert.False(t, w.Seen(""))
	assert.False(t, w.Seen(""))
	assert.Zero(t, w.Len())
}

func TestDedupWindow_RestoreKeepsNewest(t *testing.T) {
	w := NewDedupWindow(2)
	w.restore([]string{"a", "b", "c"})
	assert.Equal(t, []string{"b", "c"}, w.Keys())
}

func TestStripIdentity(t *testing.T) {
	tests := map[string]string{
		"966500000001@s.whatsapp.net":   "966500000001",
		"966500000001:12@s.whatsapp.net": "966500000001",
		"+966500000001":                  "966500000001",
		" 966500000001 ":                 "966500000001",
		"":                               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripIdentity(in), in)
	}
}
