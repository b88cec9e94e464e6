package lane

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects job labels in execution order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) job(label string, d time.Duration) Job {
	return func(context.Context) {
		time.Sleep(d)
		r.mu.Lock()
		r.order = append(r.order, label)
		r.mu.Unlock()
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, m)

	m, err = ParseMode("followup")
	require.NoError(t, err)
	assert.Equal(t, ModeFollowup, m)

	_, err = ParseMode("collect")
	assert.Error(t, err)
}

func TestFollowup_Sequential(t *testing.T) {
	m := NewManager(Config{Mode: ModeFollowup})
	r := &recorder{}

	// The first job is the slowest; FIFO order must still hold.
	m.Submit(context.Background(), "chat", r.job("1", 40*time.Millisecond))
	m.Submit(context.Background(), "chat", r.job("2", 10*time.Millisecond))
	m.Submit(context.Background(), "chat", r.job("3", 0))
	m.Wait()

	assert.Equal(t, []string{"1", "2", "3"}, r.got())
	assert.Equal(t, 0, m.Stats().Lanes, "idle lanes are released")
}

func TestFollowup_ChatsIndependent(t *testing.T) {
	m := NewManager(Config{Mode: ModeFollowup})
	r := &recorder{}

	m.Submit(context.Background(), "slow", r.job("slow", 60*time.Millisecond))
	m.Submit(context.Background(), "fast", r.job("fast", 0))
	m.Wait()

	assert.Equal(t, []string{"fast", "slow"}, r.got())
}

func TestParallel_RunsConcurrently(t *testing.T) {
	m := NewManager(Config{})
	var running, peak atomic.Int32
	job := func(context.Context) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
	}
	for i := 0; i < 3; i++ {
		m.Submit(context.Background(), "chat", job)
	}
	m.Wait()
	assert.Equal(t, int32(3), peak.Load())
}

func TestInterrupt_KeepsLatest(t *testing.T) {
	var dropped atomic.Int32
	m := NewManager(Config{
		Mode:   ModeInterrupt,
		OnDrop: func(_ string, n int) { dropped.Add(int32(n)) },
	})
	r := &recorder{}

	started, release := make(chan struct{}), make(chan struct{})
	m.Submit(context.Background(), "chat", func(ctx context.Context) {
		close(started)
		<-release
		r.job("first", 0)(ctx)
	})
	<-started
	m.Submit(context.Background(), "chat", r.job("second", 0))
	m.Submit(context.Background(), "chat", r.job("third", 0))
	close(release)
	m.Wait()

	assert.Equal(t, []string{"first", "third"}, r.got())
	assert.Equal(t, int32(1), dropped.Load())
	assert.Equal(t, 1, m.Stats().Dropped)
}

func TestSetMode(t *testing.T) {
	m := NewManager(Config{Mode: ModeFollowup})
	m.SetMode(ModeInterrupt)
	assert.Equal(t, ModeInterrupt, m.Mode())
	assert.Equal(t, ModeInterrupt, m.Stats().Mode)
}

func TestEmptyKeyRunsParallel(t *testing.T) {
	m := NewManager(Config{Mode: ModeFollowup})
	done := make(chan struct{})
	m.Submit(context.Background(), "", func(context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	m.Wait()
	assert.Equal(t, 0, m.Stats().Lanes)
}
