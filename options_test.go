package expect

import (
	"io"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOptions_defaults(t *testing.T) {
	cfg, err := resolveOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, &sessionConfig{
		rows:          24,
		cols:          80,
		expectTimeout: 30 * time.Second,
		closeGrace:    100 * time.Millisecond,
		maxBuffer:     DefaultMaxBuffer,
		readSize:      4096,
	}, cfg)
}

func TestResolveOptions(t *testing.T) {
	logger := new(logiface.Logger[logiface.Event])
	cfg, err := resolveOptions([]Option{
		WithSize(50, 132),
		WithEnv(`A=1`),
		nil,
		WithEnv(`B=2`, `C=3`),
		WithDir(`/tmp`),
		WithMode(ModeCooked),
		WithExpectTimeout(-1),
		WithMaxBuffer(0),
		WithReadSize(16),
		WithClosePolicy(CloseTerminate, 0),
		WithLogger(logger),
		WithTranscript(io.Discard),
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(50), cfg.rows)
	assert.Equal(t, uint16(132), cfg.cols)
	assert.Equal(t, []string{`A=1`, `B=2`, `C=3`}, cfg.env)
	assert.Equal(t, `/tmp`, cfg.dir)
	assert.Equal(t, ModeCooked, cfg.mode)
	assert.Equal(t, time.Duration(-1), cfg.expectTimeout)
	assert.Zero(t, cfg.maxBuffer)
	assert.Equal(t, 16, cfg.readSize)
	assert.Equal(t, CloseTerminate, cfg.closePolicy)
	assert.Equal(t, 100*time.Millisecond, cfg.closeGrace)
	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, io.Discard, cfg.transcript)

	cfg, err = resolveOptions([]Option{WithClosePolicy(CloseLeaveRunning, time.Second)})
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.closeGrace)
}

func TestResolveOptions_invalid(t *testing.T) {
	for name, opt := range map[string]Option{
		`read size`:    WithReadSize(0),
		`mode`:         WithMode(TerminalMode(7)),
		`close policy`: WithClosePolicy(ClosePolicy(7), 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := resolveOptions([]Option{opt})
			assert.Error(t, err)
		})
	}
}

func TestTerminalMode_String(t *testing.T) {
	assert.Equal(t, `raw`, ModeRaw.String())
	assert.Equal(t, `cooked`, ModeCooked.String())
	assert.Equal(t, `TerminalMode(5)`, TerminalMode(5).String())
	assert.Equal(t, `kill`, CloseKill.String())
	assert.Equal(t, `terminate`, CloseTerminate.String())
	assert.Equal(t, `leave running`, CloseLeaveRunning.String())
	assert.Equal(t, `ClosePolicy(5)`, ClosePolicy(5).String())
}
