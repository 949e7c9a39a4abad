// Package config loads and hot-reloads the daemon configuration file.
// The engine itself consumes no files; the runtime loop applies relevant
// changes between ticks.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ThrottleSettings tune the control core.
type ThrottleSettings struct {
	TickIntervalMS     uint64  `yaml:"tick_interval_ms" json:"tick_interval_ms"`
	DefaultLockoutMS   uint64  `yaml:"default_lockout_ms" json:"default_lockout_ms"`
	MaxSpeed           float64 `yaml:"max_speed" json:"max_speed"`
	QueueCapacity      int     `yaml:"queue_capacity" json:"queue_capacity"`
	CurrentSampleEvery int     `yaml:"current_sample_every" json:"current_sample_every"`
	EncoderDetents     int     `yaml:"encoder_detents" json:"encoder_detents"`
}

// AdapterSettings configure the host surfaces around the core.
type AdapterSettings struct {
	HTTPListen   string `yaml:"http_listen" json:"http_listen"`
	RedisURL     string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	BusNamespace string `yaml:"bus_namespace,omitempty" json:"bus_namespace,omitempty"`
}

// Runtime is the complete daemon configuration.
type Runtime struct {
	Version          string           `yaml:"version" json:"version"`
	Throttle         ThrottleSettings `yaml:"throttle" json:"throttle"`
	Adapters         AdapterSettings  `yaml:"adapters" json:"adapters"`
	LogLevel         string           `yaml:"log_level" json:"log_level"`
	MetricsEnabled   bool             `yaml:"metrics_enabled" json:"metrics_enabled"`
	HotReloadEnabled bool             `yaml:"hot_reload_enabled" json:"hot_reload_enabled"`
	Checksum         string           `yaml:"-" json:"checksum,omitempty"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Runtime {
	return Runtime{
		Version: "1",
		Throttle: ThrottleSettings{
			TickIntervalMS:     20,
			DefaultLockoutMS:   3000,
			MaxSpeed:           1.0,
			QueueCapacity:      4,
			CurrentSampleEvery: 25,
			EncoderDetents:     20,
		},
		Adapters: AdapterSettings{
			HTTPListen:   ":8090",
			BusNamespace: "traction",
		},
		LogLevel:         "info",
		MetricsEnabled:   true,
		HotReloadEnabled: true,
	}
}

// Validate rejects configurations the core cannot honour.
func (r *Runtime) Validate() error {
	t := r.Throttle
	if t.TickIntervalMS == 0 {
		return fmt.Errorf("throttle.tick_interval_ms must be positive")
	}
	if t.MaxSpeed < 0 || t.MaxSpeed > 1 {
		return fmt.Errorf("throttle.max_speed %v outside [0,1]", t.MaxSpeed)
	}
	if t.QueueCapacity < 1 {
		return fmt.Errorf("throttle.queue_capacity must be at least 1")
	}
	if t.DefaultLockoutMS == 0 {
		return fmt.Errorf("throttle.default_lockout_ms must be positive")
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load reads and validates a YAML configuration file. Unset fields keep
// their defaults.
func Load(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	r := Defaults()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.Checksum = checksum(data)
	return &r, nil
}

// Change is a detected configuration update.
type Change struct {
	Runtime          *Runtime
	ChangedAt        time.Time
	PreviousChecksum string
}

// Watcher hot-reloads the configuration file.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	last    string // checksum of last good load
	changes chan Change
	done    chan struct{}
}

// NewWatcher starts watching path. The returned channel delivers each
// valid change once; invalid or unchanged rewrites are skipped.
func NewWatcher(path string, current *Runtime) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	// Watch the directory: editors replace files rather than write in place.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	w := &Watcher{
		path:    path,
		watcher: fw,
		changes: make(chan Change, 4),
		done:    make(chan struct{}),
	}
	if current != nil {
		w.last = current.Checksum
	}
	go w.run()
	return w, nil
}

// Changes delivers validated configuration updates.
func (w *Watcher) Changes() <-chan Change { return w.changes }

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			r, err := Load(w.path)
			if err != nil {
				continue // keep running on the last good config
			}
			if r.Checksum == w.last {
				continue
			}
			prev := w.last
			w.last = r.Checksum
			select {
			case w.changes <- Change{Runtime: r, ChangedAt: time.Now(), PreviousChecksum: prev}:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
