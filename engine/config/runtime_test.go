package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "traction.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
version: "2"
throttle:
  default_lockout_ms: 5000
  max_speed: 0.8
adapters:
  http_listen: ":9001"
`)
	r, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), r.Throttle.DefaultLockoutMS)
	require.Equal(t, 0.8, r.Throttle.MaxSpeed)
	// Unset fields keep defaults.
	require.Equal(t, uint64(20), r.Throttle.TickIntervalMS)
	require.Equal(t, 4, r.Throttle.QueueCapacity)
	require.Equal(t, ":9001", r.Adapters.HTTPListen)
	require.NotEmpty(t, r.Checksum)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad max speed": "throttle:\n  max_speed: 1.5\n",
		"zero tick":     "throttle:\n  tick_interval_ms: 0\n",
		"zero queue":    "throttle:\n  queue_capacity: 0\n",
		"broken yaml":   "throttle: [\n",
		"zero lockout":  "throttle:\n  default_lockout_ms: 0\n",
	}
	for name, body := range cases {
		path := writeConfig(t, t.TempDir(), body)
		_, err := Load(path)
		require.Error(t, err, name)
	}
}

func TestWatcherDeliversValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: \"1\"\n")
	cur, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, cur)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\nthrottle:\n  max_speed: 0.5\n"), 0o644))

	select {
	case ch := <-w.Changes():
		require.Equal(t, "2", ch.Runtime.Version)
		require.Equal(t, 0.5, ch.Runtime.Throttle.MaxSpeed)
		require.Equal(t, cur.Checksum, ch.PreviousChecksum)
	case <-time.After(3 * time.Second):
		t.Fatalf("no change delivered")
	}
}

func TestWatcherSkipsInvalidRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: \"1\"\n")
	cur, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, cur)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// Invalid update: must be swallowed, then a valid one delivered.
	require.NoError(t, os.WriteFile(path, []byte("throttle:\n  max_speed: 9\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("version: \"3\"\n"), 0o644))

	select {
	case ch := <-w.Changes():
		require.Equal(t, "3", ch.Runtime.Version)
	case <-time.After(3 * time.Second):
		t.Fatalf("no change delivered")
	}
}
