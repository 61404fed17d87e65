package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from the tool.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// DefaultCommand is the tool looked up on PATH when none is configured.
	DefaultCommand = "outputmodules-from-config"
)

// Runner spawns the discovery tool.
type Runner struct {
	command string
	args    []string
	logger  *slog.Logger
}

// New returns a Runner for command. An empty command selects DefaultCommand.
func New(command string, args ...string) *Runner {
	if command == "" {
		command = DefaultCommand
	}
	return &Runner{
		command: command,
		args:    append([]string(nil), args...),
		logger:  log.WithComponent("discovery"),
	}
}

// Command returns the executable the runner spawns.
func (r *Runner) Command() string { return r.command }

// Discover runs the tool for req and returns the declared output modules.
func (r *Runner) Discover(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = terminationGracePeriod

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errdefs.Compilation(err, "create stdin pipe")
	}
	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	r.logger.Debug("spawning discovery tool", "command", r.command, "config_url", req.ConfigURL, "scenario", req.ScenarioName)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errdefs.Compilation(err, "start %s", r.command)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- protocol.EncodeRequest(stdin, &req)
	}()

	waitErr := cmd.Wait()
	werr := <-writeErr
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("discovery tool cancelled", "command", r.command, "elapsed", elapsed)
		return nil, errdefs.Compilation(ctxErr, "%s cancelled; stderr: %s", r.command, stderr.String())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			r.logger.Warn("discovery tool exited with non-zero status", "command", r.command, "exit_code", exitErr.ExitCode())
			return nil, errdefs.Compilation(waitErr, "%s exited with status %d; stderr: %s", r.command, exitErr.ExitCode(), stderr.String())
		}
		return nil, errdefs.Compilation(waitErr, "wait for %s", r.command)
	}
	// A tool that answers without reading its input closes the pipe early;
	// the answer still counts.
	if werr != nil && !errors.Is(werr, syscall.EPIPE) && !errors.Is(werr, os.ErrClosed) {
		return nil, errdefs.Compilation(werr, "write request to %s", r.command)
	}
	r.logger.Debug("discovery tool exited", "command", r.command, "exit_code", 0, "elapsed", elapsed)

	resp, raw, err := protocol.DecodeResponse(&stdout)
	if err != nil {
		r.logger.Error("failed to decode discovery output", "error", err, "stdout", string(raw))
		return nil, errdefs.Compilation(err, "decode %s output", r.command)
	}
	return resp, nil
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return fmt.Sprintf("%s...[truncated]", b.buf.String())
	}
	return b.buf.String()
}
