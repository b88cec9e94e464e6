package reload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, changed)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, paths []string) *recorder {
	t.Helper()
	rec := &recorder{}
	w, err := New(paths, 50*time.Millisecond, rec.record, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfg, []byte("{}"), 0o644))

	t.Run("burst", func(t *testing.T) {
		rec := startWatcher(t, []string{cfg})
		for i := 0; i < 5; i++ {
			require.NoError(t, os.WriteFile(cfg, []byte(`{"n":1}`), 0o644))
			time.Sleep(5 * time.Millisecond)
		}

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
		time.Sleep(150 * time.Millisecond)
		calls := rec.snapshot()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{cfg}, calls[0])
	})
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	rec := startWatcher(t, []string{cfg})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcher_SeesRenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mappings.json")
	rec := startWatcher(t, []string{target})

	tmp := filepath.Join(dir, ".mappings-123.json")
	require.NoError(t, os.WriteFile(tmp, []byte("{}"), 0o644))
	require.NoError(t, os.Rename(tmp, target))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{target}, rec.snapshot()[0])
}
