// Package stationbus bridges the throttle onto the home-automation
// message bus: a Redis pub/sub pair carrying wire-JSON commands inbound
// and state snapshots outbound. Commands from the bus carry the lowest
// authority (Mqtt); anything else on the layout outranks them.
package stationbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"traction/engine"
	"traction/engine/command"
	"traction/engine/telemetry/logging"
)

// Controller is the slice of the runtime loop the bridge needs.
type Controller interface {
	Submit(cmd command.Command, src command.Source) (engine.Ack, error)
	State() engine.ThrottleState
}

// Options configure the bridge.
type Options struct {
	// RedisURL in redis://host:port/db form.
	RedisURL string
	// Namespace prefixes the channels: <ns>:commands, <ns>:state.
	Namespace  string
	Controller Controller
	Logger     logging.Logger
	// StateInterval is the outbound state publish cadence (default 500ms).
	StateInterval time.Duration
}

// envelope is the outbound state message.
type envelope struct {
	MessageID string               `json:"message_id"`
	State     engine.ThrottleState `json:"state"`
}

// Bridge owns the Redis client; Run pumps both directions from one loop.
type Bridge struct {
	client   *redis.Client
	ns       string
	ctrl     Controller
	log      logging.Logger
	interval time.Duration
}

// New parses the URL and verifies connectivity.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	opt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.MaxRetries = 3
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "traction"
	}
	interval := opts.StateInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	return &Bridge{client: client, ns: ns, ctrl: opts.Controller, log: log, interval: interval}, nil
}

func (b *Bridge) commandChannel() string { return b.ns + ":commands" }
func (b *Bridge) stateChannel() string   { return b.ns + ":state" }

// Run pumps both directions until the context ends.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.commandChannel())
	defer func() { _ = sub.Close() }()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("command subscription closed")
			}
			b.handleCommand(ctx, []byte(msg.Payload))
		case <-ticker.C:
			b.publishState(ctx)
		}
	}
}

func (b *Bridge) handleCommand(ctx context.Context, payload []byte) {
	cmd, err := command.Unmarshal(payload)
	if err != nil {
		b.log.InfoCtx(ctx, "bus command undecodable", slog.Any("error", err))
		return
	}
	if _, err := b.ctrl.Submit(cmd, command.SourceMqtt); err != nil {
		b.log.InfoCtx(ctx, "bus command rejected",
			slog.String("kind", cmd.Kind.String()), slog.Any("error", err))
	}
}

func (b *Bridge) publishState(ctx context.Context) {
	data, err := json.Marshal(envelope{MessageID: uuid.NewString(), State: b.ctrl.State()})
	if err != nil {
		return
	}
	if err := b.client.Publish(ctx, b.stateChannel(), data).Err(); err != nil {
		b.log.WarnCtx(ctx, "state publish failed", slog.Any("error", err))
	}
}

// Close releases the Redis client.
func (b *Bridge) Close() error { return b.client.Close() }
