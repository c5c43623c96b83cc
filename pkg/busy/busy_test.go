package busy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlag(t *testing.T) {
	var f Flag
	assert.False(t, f.Busy())

	release1 := f.Hold()
	release2 := f.Hold()
	assert.True(t, f.Busy())

	release1()
	release1()
	assert.True(t, f.Busy(), "second hold is still active")

	release2()
	assert.False(t, f.Busy())
}

type static bool

func (s static) Busy() bool { return bool(s) }

func TestAny(t *testing.T) {
	assert.False(t, Any{}.Busy())
	assert.False(t, Any{static(false), nil}.Busy())
	assert.True(t, Any{static(false), static(true)}.Busy())
}

func TestNewFileGuard(t *testing.T) {
	_, err := NewFileGuard("")
	assert.Error(t, err)

	_, err = NewFileGuard(filepath.Join(t.TempDir(), "missing", "busy.lock"))
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "busy.lock")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	g, err := NewFileGuard(path)
	require.NoError(t, err)
	assert.True(t, g.Busy(), "existing lock file is picked up immediately")
	assert.Equal(t, path, g.Path())
}

func TestFileGuard_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "busy.lock")

	g, err := NewFileGuard(path)
	require.NoError(t, err)
	require.False(t, g.Busy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx) }()

	// unrelated files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), nil, 0o644))

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, nil, 0o644)
		return g.Busy()
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return !g.Busy() }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
