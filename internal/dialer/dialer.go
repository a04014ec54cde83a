// Package dialer builds ready-to-use transmitters: reachability probe, TCP
// connect, login handshake, all behind a circuit breaker so a flapping NAS
// fails fast instead of charging every billing event a connect timeout.
package dialer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/avlasov/nassync/internal/nas"
	"github.com/avlasov/nassync/internal/probe"
	"github.com/avlasov/nassync/internal/routeros"
)

var (
	ErrNoAddress   = errors.New("dialer: NAS address not specified")
	ErrUnreachable = errors.New("dialer: NAS did not answer the reachability probe")
)

// Config controls the connect pipeline. Breaker fields guard connect
// attempts only; established sessions are never interrupted.
type Config struct {
	Session          routeros.Config
	AllowList        string
	ProbeCount       int
	ProbeTimeout     time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

func (c Config) WithDefaults() Config {
	c.Session = c.Session.WithDefaults()
	if c.ProbeCount == 0 {
		c.ProbeCount = 3
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// session is what the pipeline needs from a dialed connection.
type session interface {
	routeros.Conn
	Login() error
	Close() error
}

// Connector hands out one independent session per synchronization attempt.
// Concurrent callers each get their own connection; nothing is pooled.
type Connector struct {
	cfg    Config
	pinger probe.Pinger
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger

	dial func(ctx context.Context, cfg routeros.Config, log zerolog.Logger) (session, error)
}

func New(cfg Config, log zerolog.Logger) *Connector {
	cfg = cfg.WithDefaults()
	c := &Connector{
		cfg:    cfg,
		pinger: probe.New(cfg.ProbeCount, cfg.ProbeTimeout),
		log:    log,
		dial: func(ctx context.Context, sc routeros.Config, log zerolog.Logger) (session, error) {
			return routeros.Dial(ctx, sc, log)
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "nas-connect",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("connect breaker state changed")
		},
	})
	return c
}

// Handle is an authenticated transmitter bound to one session. Close it when
// the synchronization attempt is done.
type Handle struct {
	*routeros.Transmitter
	sess session
}

func (h *Handle) Close() error {
	return h.sess.Close()
}

// Connect runs probe, dial and login. A breaker held open by previous
// failures surfaces as a network error without touching the device.
func (c *Connector) Connect(ctx context.Context) (*Handle, error) {
	out, err := c.cb.Execute(func() (any, error) {
		return c.connect(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &nas.NetError{Op: "connect", Err: err}
		}
		return nil, err
	}
	return out.(*Handle), nil
}

func (c *Connector) connect(ctx context.Context) (*Handle, error) {
	host := c.cfg.Session.Address
	if host == "" {
		return nil, &nas.NetError{Op: "connect", Err: ErrNoAddress}
	}

	ok, err := c.pinger.Reachable(ctx, host)
	if err != nil {
		return nil, &nas.NetError{Op: "probe " + host, Err: err}
	}
	if !ok {
		return nil, &nas.NetError{Op: "probe " + host, Err: ErrUnreachable}
	}

	sess, err := c.dial(ctx, c.cfg.Session, c.log)
	if err != nil {
		return nil, err
	}
	if err := sess.Login(); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return &Handle{
		Transmitter: routeros.New(sess, c.cfg.AllowList, c.log),
		sess:        sess,
	}, nil
}

// WithTransmitter runs fn against a fresh transmitter and guarantees the
// session is closed on every exit path.
func (c *Connector) WithTransmitter(ctx context.Context, fn func(nas.Transmitter) error) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(h)
}
