// Package engine runs the external analysis engine as a child process and
// turns every possible outcome - normal exit, non-zero exit, spawn failure,
// wall-clock timeout - into a structured result the fallback controller can
// inspect without exception-style control flow.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Outcome distinguishes how an invocation ended. Exactly one of these
// occurs per run.
type Outcome string

const (
	// OutcomeCompleted means the process exited on its own (any exit code).
	OutcomeCompleted Outcome = "completed"
	// OutcomeTimedOut means the process group was force-killed at the
	// wall-clock budget (or when the caller's context expired).
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeSpawnFailed means the process never started (bad path,
	// permissions).
	OutcomeSpawnFailed Outcome = "spawn_failed"
)

// Command describes one engine invocation.
type Command struct {
	Path  string
	Args  []string
	Env   map[string]string // merged over the parent environment
	Stdin []byte            // optional; written fully, then the stream is closed
	Dir   string
}

// Result is the ephemeral record of one run. It is never an error value:
// a killed or failed process still yields a Result so the caller decides
// what to do with it.
type Result struct {
	Outcome    Outcome
	ExitCode   *int // set only for OutcomeCompleted
	Stdout     string
	Stderr     string
	SpawnError string // set only for OutcomeSpawnFailed
	Elapsed    time.Duration
}

// Succeeded reports a clean zero exit.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeCompleted && r.ExitCode != nil && *r.ExitCode == 0
}

// Invoker launches engine processes.
type Invoker struct {
	log zerolog.Logger
}

// NewInvoker creates a new process invoker.
func NewInvoker(log zerolog.Logger) *Invoker {
	return &Invoker{
		log: log.With().Str("component", "invoker").Logger(),
	}
}

// Run executes the command to completion or force-terminates it at the
// timeout. Output accumulates concurrently with execution; after a kill the
// partial buffers are returned for diagnostics only.
//
// The exit path and the timeout path race; the buffered done channel with a
// single consumer guarantees at most one of them settles the result.
func (i *Invoker) Run(ctx context.Context, command Command, timeout time.Duration) Result {
	start := time.Now()

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = mergedEnv(command.Env)

	// New process group so a timeout kill reaches the engine's own children
	// too, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(command.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(command.Stdin)
	}

	if err := cmd.Start(); err != nil {
		i.log.Error().Err(err).Str("path", command.Path).Msg("Failed to spawn engine process")
		return Result{
			Outcome:    OutcomeSpawnFailed,
			SpawnError: err.Error(),
			Elapsed:    time.Since(start),
		}
	}

	pid := cmd.Process.Pid
	i.log.Debug().
		Int("pid", pid).
		Str("path", command.Path).
		Strs("args", command.Args).
		Dur("timeout", timeout).
		Msg("Engine process started")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		code := exitCode(err)
		elapsed := time.Since(start)
		i.log.Debug().
			Int("pid", pid).
			Int("exit_code", code).
			Dur("elapsed", elapsed).
			Msg("Engine process exited")
		return Result{
			Outcome:  OutcomeCompleted,
			ExitCode: &code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Elapsed:  elapsed,
		}

	case <-timer.C:
		i.killGroup(pid, "timeout")
		<-done // reap; also unblocks the pipe-copy goroutines
		return Result{
			Outcome: OutcomeTimedOut,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Elapsed: time.Since(start),
		}

	case <-ctx.Done():
		i.killGroup(pid, ctx.Err().Error())
		<-done
		return Result{
			Outcome: OutcomeTimedOut,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Elapsed: time.Since(start),
		}
	}
}

// killGroup force-terminates the whole process group. The engine is opaque
// and non-cooperative, so there is no graceful-signal phase.
func (i *Invoker) killGroup(pid int, cause string) {
	i.log.Warn().Int("pid", pid).Str("cause", cause).Msg("Force-killing engine process group")

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		// Group kill can fail if the leader already exited; fall back to
		// killing the direct child.
		if !errors.Is(err, syscall.ESRCH) {
			i.log.Warn().Err(err).Int("pid", pid).Msg("Process group kill failed, killing child directly")
		}
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// mergedEnv returns the parent environment with the overrides applied.
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// exitCode extracts the exit code from cmd.Wait's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
