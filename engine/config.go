package engine

// Config tunes the control core. Adapter and daemon settings live in the
// config package; the engine only sees what affects its own decisions.
type Config struct {
	// DefaultLockoutMillis is the window granted to a >= Physical source
	// when its command installs.
	DefaultLockoutMillis uint64
	// MaxSpeed caps |speed|; targets are clamped into [-MaxSpeed, MaxSpeed].
	MaxSpeed float64
	// QueueCapacity bounds the follow-up queue on the transition manager.
	QueueCapacity int
	// MetricsEnabled selects the Prometheus provider when no explicit
	// provider option is given.
	MetricsEnabled bool
	// CurrentSampleEvery reads motor current once per this many ticks;
	// 0 disables sampling.
	CurrentSampleEvery int
}

// Defaults returns the engine configuration used by a bare New.
func Defaults() Config {
	return Config{
		DefaultLockoutMillis: 3000,
		MaxSpeed:             1.0,
		QueueCapacity:        4,
		MetricsEnabled:       true,
		CurrentSampleEvery:   25,
	}
}

func (c *Config) normalize() {
	if c.DefaultLockoutMillis == 0 {
		c.DefaultLockoutMillis = 3000
	}
	if c.MaxSpeed <= 0 || c.MaxSpeed > 1 {
		c.MaxSpeed = 1.0
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4
	}
}
