package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/aretw0/conduit/pkg/ports"
)

var _ ports.Model = (*Exec)(nil)

// Exec runs a model as an operating-system process.
// Bindings set with SetEnv are appended to the parent environment, after Config.Env.
type Exec struct {
	lifecycle
	cfg    Config
	stdout io.Writer
	stderr io.Writer
	cmd    *exec.Cmd
}

// NewExec prepares a process model. Nothing runs until Start.
func NewExec(cfg Config, opts ...Option) *Exec {
	p := &Exec{
		cfg:    cfg,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	p.init(cfg.Name, opts)
	return p
}

// SetOutput redirects the process stdout and stderr. It must be called before Start.
func (p *Exec) SetOutput(stdout, stderr io.Writer) {
	if stdout != nil {
		p.stdout = stdout
	}
	if stderr != nil {
		p.stderr = stderr
	}
}

// Start launches the process. Canceling ctx terminates it.
func (p *Exec) Start(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if err := p.markStarted(); err != nil {
		return err
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = append(cmd.Environ(), pairs(p.cfg.Env)...)
	cmd.Env = append(cmd.Env, pairs(p.Env())...)
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrStart, p.name, err)
		p.finish(-1, err)
		return err
	}
	p.mu.Lock()
	p.cmd = cmd
	raced := p.terminating
	p.mu.Unlock()
	p.logger.Debug("model started", "model", p.name, "pid", cmd.Process.Pid)
	if raced {
		_ = cmd.Process.Kill()
	}

	go p.wait(cmd)
	go func() {
		select {
		case <-ctx.Done():
			p.Terminate()
		case <-p.done:
		}
	}()
	return nil
}

func (p *Exec) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.finish(code, nil)
	case p.isTerminating():
		// Stopped on request: not a model failure.
		p.finish(code, nil)
	case errors.As(err, &exitErr):
		p.finish(code, fmt.Errorf("%w: %s: %v", ErrExitStatus, p.name, err))
	default:
		p.finish(code, fmt.Errorf("model %s: %w", p.name, err))
	}
}

// Terminate interrupts the process and returns at once. A process still
// running after the stop timeout is killed. It is idempotent; use Wait to block
// until the process is gone.
func (p *Exec) Terminate() {
	first, started := p.beginTerminate()
	if !started {
		p.finish(-1, nil)
		return
	}
	if !first {
		return
	}

	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		// Start failed: finish already ran.
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug("interrupt failed, killing", "model", p.name, "err", err)
	}
	go p.escalate(cmd)
}

func (p *Exec) escalate(cmd *exec.Cmd) {
	if p.Wait(p.stopTimeout) {
		return
	}
	p.logger.Warn("model ignored interrupt, killing", "model", p.name, "timeout", p.stopTimeout)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("kill failed", "model", p.name, "err", err)
	}
}
