package expect

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitStatus(t *testing.T) {
	for _, tc := range [...]struct {
		status  ExitStatus
		str     string
		running bool
		success bool
	}{
		{status: ExitStatus{}, str: `running`, running: true},
		{status: ExitStatus{Kind: StatusExited}, str: `exited(0)`, success: true},
		{status: ExitStatus{Kind: StatusExited, Code: 2}, str: `exited(2)`},
		{status: ExitStatus{Kind: StatusSignaled, Signal: syscall.SIGKILL, Code: -1}, str: `signaled(killed)`},
		{status: ExitStatus{Kind: 9}, str: `status(9)`},
	} {
		t.Run(tc.str, func(t *testing.T) {
			assert.Equal(t, tc.str, tc.status.String())
			assert.Equal(t, tc.running, tc.status.Running())
			assert.Equal(t, tc.success, tc.status.Success())
		})
	}
	assert.Equal(t, `signaled`, StatusSignaled.String())
	assert.Equal(t, `StatusKind(9)`, StatusKind(9).String())
}
