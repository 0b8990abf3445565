package rtl433

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// ProcessHandle is the capability the adapter needs over the receiver
// process. The platform-specific spawning detail stays behind it, and tests
// substitute a fake that writes the output file themselves.
type ProcessHandle interface {
	Start() error
	IsRunning() bool
	Terminate() error
}

// execHandle runs the real receiver binary.
type execHandle struct {
	path string
	args []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	waited chan struct{}
	exited bool
}

// NewExecHandle builds a handle for the receiver binary with the full
// argument list, including the output file sink.
func NewExecHandle(path string, args []string) ProcessHandle {
	return &execHandle{path: path, args: args}
}

func (h *execHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return fmt.Errorf("receiver already started")
	}
	cmd := exec.Command(h.path, h.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start receiver %s: %w", h.path, err)
	}
	h.cmd = cmd
	h.waited = make(chan struct{})
	go func() {
		// Reap the child so a terminated receiver never lingers as a zombie.
		_ = cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.mu.Unlock()
		close(h.waited)
	}()
	return nil
}

func (h *execHandle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil || h.exited {
		return false
	}
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (h *execHandle) Terminate() error {
	h.mu.Lock()
	cmd := h.cmd
	exited := h.exited
	waited := h.waited
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil || exited {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill receiver: %w", err)
	}
	<-waited
	return nil
}
