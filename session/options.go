package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
	"github.com/arloliu/go-tankbot/wire"
)

// Default values of a session configuration.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 1 * time.Second
	DefaultWriteTimeout   = 2 * time.Second
	DefaultCloseTimeout   = 3 * time.Second

	DefaultSendQueueSize = 16

	MaxSendQueueSize = 4096
	MaxReadChunkSize = 64 * 1024
)

type config struct {
	readChunkSize int
	maxFrameSize  int
	sendQueueSize int

	connectTimeout time.Duration
	sendTimeout    time.Duration
	writeTimeout   time.Duration
	closeTimeout   time.Duration

	dialer   transport.Dialer
	listener Listener
	logger   logger.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		readChunkSize:  wire.DefaultReadChunkSize,
		maxFrameSize:   wire.DefaultMaxFrameSize,
		sendQueueSize:  DefaultSendQueueSize,
		connectTimeout: DefaultConnectTimeout,
		sendTimeout:    DefaultSendTimeout,
		writeTimeout:   DefaultWriteTimeout,
		closeTimeout:   DefaultCloseTimeout,
		listener:       nopListener{},
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.dialer == nil {
		return nil, ErrDialerNil
	}

	return cfg, nil
}

// Option is a functional option for configuring a Session.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithDialer sets the dialer used to open links. Required unless
// WithTransport is given.
func WithDialer(d transport.Dialer) Option {
	return optFunc(func(cfg *config) error {
		if d == nil {
			return ErrDialerNil
		}
		cfg.dialer = d

		return nil
	})
}

// WithTransport selects a dialer from the default transport registry by
// name, e.g. "rfcomm", "serial" or "tcp". The transport package must have
// been imported for its name to be registered.
func WithTransport(name string) Option {
	return optFunc(func(cfg *config) error {
		d, err := transport.Lookup(name)
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		cfg.dialer = d

		return nil
	})
}

// WithListener sets the receiver of session notifications.
func WithListener(l Listener) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("session: listener must not be nil")
		}
		cfg.listener = l

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("session: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithReadChunkSize sets the size of one read from the link.
func WithReadChunkSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 || n > MaxReadChunkSize {
			return fmt.Errorf("session: read chunk size %d out of range [1, %d]", n, MaxReadChunkSize)
		}
		cfg.readChunkSize = n

		return nil
	})
}

// WithMaxFrameSize bounds the bytes buffered while waiting for a delimiter.
// Zero disables the bound.
func WithMaxFrameSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("session: max frame size %d must not be negative", n)
		}
		cfg.maxFrameSize = n

		return nil
	})
}

// WithSendQueueSize sets the capacity of the per-link writer queue.
func WithSendQueueSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 || n > MaxSendQueueSize {
			return fmt.Errorf("session: send queue size %d out of range [1, %d]", n, MaxSendQueueSize)
		}
		cfg.sendQueueSize = n

		return nil
	})
}

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("session: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithSendTimeout sets how long Send waits for room in a full writer queue.
// Zero makes Send fail immediately on a full queue.
func WithSendTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("session: send timeout must not be negative")
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithWriteTimeout sets the deadline of one write on links supporting
// write deadlines. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("session: write timeout must not be negative")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithCloseTimeout bounds how long Disconnect and Close wait for the link
// goroutines to finish.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("session: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}
