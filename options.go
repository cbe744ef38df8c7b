package expect

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/joeycumines/logiface"
)

type (
	// Option configures a [Session], see [Spawn].
	Option interface {
		applySession(*sessionConfig) error
	}

	// TerminalMode is the line discipline mode of the PTY.
	TerminalMode uint8

	// ClosePolicy determines what [Session.Close] does with a child that
	// is still running.
	ClosePolicy uint8

	sessionConfig struct {
		logger        *logiface.Logger[logiface.Event]
		transcript    io.Writer
		env           []string
		dir           string
		expectTimeout time.Duration
		closeGrace    time.Duration
		maxBuffer     int
		readSize      int
		rows          uint16
		cols          uint16
		mode          TerminalMode
		closePolicy   ClosePolicy
	}

	optionImpl func(*sessionConfig) error
)

const (
	// ModeRaw disables the kernel line discipline, so bytes pass through
	// unmodified. This is the default.
	ModeRaw TerminalMode = iota
	// ModeCooked leaves the terminal as allocated, with line editing,
	// echo, and signal generation from control characters.
	ModeCooked
)

const (
	// CloseKill sends SIGKILL, then reaps the child. This is the default.
	CloseKill ClosePolicy = iota
	// CloseTerminate sends SIGTERM, waits up to a grace period, then falls
	// back to SIGKILL.
	CloseTerminate
	// CloseLeaveRunning only releases the PTY. The child will usually
	// receive SIGHUP, as the terminal hangs up.
	CloseLeaveRunning
)

const (
	defaultExpectTimeout = 30 * time.Second
	defaultCloseGrace    = 100 * time.Millisecond
)

func (f optionImpl) applySession(c *sessionConfig) error {
	return f(c)
}

// WithSize sets the PTY dimensions. Default is 24x80.
func WithSize(rows, cols uint16) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.rows = rows
		c.cols = cols
		return nil
	})
}

// WithEnv appends to the environment, which is inherited from the current
// process by default.
func WithEnv(env ...string) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.env = append(c.env, env...)
		return nil
	})
}

// WithDir sets the working directory.
func WithDir(path string) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.dir = path
		return nil
	})
}

// WithMode sets the initial terminal mode. Default is [ModeRaw].
func WithMode(mode TerminalMode) Option {
	return optionImpl(func(c *sessionConfig) error {
		switch mode {
		case ModeRaw, ModeCooked:
		default:
			return fmt.Errorf("invalid terminal mode: %d", mode)
		}
		c.mode = mode
		return nil
	})
}

// WithExpectTimeout sets the timeout used by [Session.Expect]. A value <= 0
// disables it, meaning expect waits until a match, EOF, or an error.
// Default is 30 seconds.
func WithExpectTimeout(d time.Duration) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.expectTimeout = d
		return nil
	})
}

// WithMaxBuffer caps the number of pending (unmatched) bytes. Once reached,
// expect fails with [ErrBufferFull] rather than reading more. A value <= 0
// removes the cap. Default is [DefaultMaxBuffer].
func WithMaxBuffer(n int) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.maxBuffer = n
		return nil
	})
}

// WithReadSize sets the maximum size of a single read. Default is 4096.
func WithReadSize(n int) Option {
	return optionImpl(func(c *sessionConfig) error {
		if n <= 0 {
			return errors.New("read size must be positive")
		}
		c.readSize = n
		return nil
	})
}

// WithClosePolicy configures how [Session.Close] treats a running child.
// The grace period applies to [CloseTerminate], a value <= 0 uses the
// default of 100ms.
func WithClosePolicy(policy ClosePolicy, grace time.Duration) Option {
	return optionImpl(func(c *sessionConfig) error {
		switch policy {
		case CloseKill, CloseTerminate, CloseLeaveRunning:
		default:
			return fmt.Errorf("invalid close policy: %d", policy)
		}
		c.closePolicy = policy
		if grace > 0 {
			c.closeGrace = grace
		} else {
			c.closeGrace = defaultCloseGrace
		}
		return nil
	})
}

// WithLogger sets the logger. A nil logger disables logging, which is the
// default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.logger = logger
		return nil
	})
}

// WithTranscript mirrors all I/O to w, one Go-quoted line per chunk, e.g.
// `write: "ls\n"` then `read: "ls\r\n"`. Write errors are ignored.
func WithTranscript(w io.Writer) Option {
	return optionImpl(func(c *sessionConfig) error {
		c.transcript = w
		return nil
	})
}

func resolveOptions(opts []Option) (*sessionConfig, error) {
	cfg := &sessionConfig{
		rows:          24,
		cols:          80,
		expectTimeout: defaultExpectTimeout,
		closeGrace:    defaultCloseGrace,
		maxBuffer:     DefaultMaxBuffer,
		readSize:      defaultReadSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySession(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply session option: %w", err)
		}
	}
	return cfg, nil
}

func (x TerminalMode) String() string {
	switch x {
	case ModeRaw:
		return `raw`
	case ModeCooked:
		return `cooked`
	default:
		return `TerminalMode(` + strconv.Itoa(int(x)) + `)`
	}
}

func (x ClosePolicy) String() string {
	switch x {
	case CloseKill:
		return `kill`
	case CloseTerminate:
		return `terminate`
	case CloseLeaveRunning:
		return `leave running`
	default:
		return `ClosePolicy(` + strconv.Itoa(int(x)) + `)`
	}
}
