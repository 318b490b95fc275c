package procmgr

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/logger"
)

// execSession is one spawned OS child process. Output is drained
// continuously by background goroutines into combined, so PollAll
// and the read accessors never block on pipe I/O themselves: a
// goroutine-plus-buffer pattern rather than raw non-blocking syscalls.
type execSession struct {
	id         string
	command    string
	workingDir string
	startedAt  time.Time
	timeout    time.Duration

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu        sync.Mutex
	status    Status
	combined  bytes.Buffer
	watermark int

	exited chan struct{}
	killed bool

	logger *logger.Logger
}

func startSession(ctx context.Context, id, command, workingDir string, timeout time.Duration, log *logger.Logger) (*execSession, error) {
	cmd := exec.Command("sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	configurePlatform(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "procmgr", "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "procmgr", "stderr pipe", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "procmgr", "stdin pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "procmgr", "spawn failure", err)
	}

	s := &execSession{
		id:         id,
		command:    command,
		workingDir: workingDir,
		startedAt:  time.Now(),
		timeout:    timeout,
		cmd:        cmd,
		stdin:      stdin,
		status:     Status{Kind: StatusRunning},
		exited:     make(chan struct{}),
		logger:     log.WithFields(zap.String("exec_id", id)),
	}

	go s.pipeOutput(stdout)
	go s.pipeOutput(stderr)
	go s.monitorExit()

	return s, nil
}

// pipeOutput drains one pipe into the combined buffer until EOF.
func (s *execSession) pipeOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		s.mu.Lock()
		s.combined.Write(scanner.Bytes())
		s.combined.WriteByte('\n')
		s.mu.Unlock()
	}
}

// monitorExit waits for the child and records its terminal status,
// unless a concurrent kill() already claimed the terminal state.
func (s *execSession) monitorExit() {
	err := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Kind != StatusRunning {
		close(s.exited)
		return
	}

	if err == nil {
		code := s.cmd.ProcessState.ExitCode()
		s.status = Status{Kind: StatusExited, ExitCode: &code}
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		s.status = Status{Kind: StatusExited, ExitCode: &code}
	} else {
		s.status = Status{Kind: StatusKilled}
	}
	close(s.exited)
}

func (s *execSession) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *execSession) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		Command:    s.command,
		WorkingDir: s.workingDir,
		StartedAt:  s.startedAt,
		Timeout:    s.timeout,
		Status:     s.status,
	}
}

// checkTimeout kills the process and marks it TimedOut if it is still
// running past its configured timeout. Called from PollAll.
func (s *execSession) checkTimeout() {
	if s.timeout <= 0 {
		return
	}
	s.mu.Lock()
	running := s.status.Kind == StatusRunning
	elapsed := time.Since(s.startedAt)
	s.mu.Unlock()
	if !running || elapsed <= s.timeout {
		return
	}

	s.mu.Lock()
	if s.status.Kind == StatusRunning {
		s.status = Status{Kind: StatusTimedOut}
	}
	s.mu.Unlock()
	_ = s.cmd.Process.Kill()
}

// kill signals the child and marks it Killed. Idempotent: calling it
// on an already-terminated session is a no-op.
func (s *execSession) kill() {
	s.mu.Lock()
	if s.status.Kind != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	s.mu.Lock()
	if s.status.Kind == StatusRunning {
		s.status = Status{Kind: StatusKilled}
	}
	s.mu.Unlock()
}

// combinedOutput returns the full interleaved log collected so far.
func (s *execSession) combinedOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combined.String()
}

// pollOutput returns bytes appended since the last call and advances
// the watermark.
func (s *execSession) pollOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.combined.String()
	if s.watermark >= len(all) {
		return ""
	}
	out := all[s.watermark:]
	s.watermark = len(all)
	return out
}

// logOutput slices combinedOutput by line, honoring an optional
// offset and limit (nil means unbounded).
func (s *execSession) logOutput(offset, limit *int) []string {
	s.mu.Lock()
	all := s.combined.String()
	s.mu.Unlock()

	all = strings.TrimSuffix(all, "\n")
	if all == "" {
		return nil
	}
	lines := strings.Split(all, "\n")

	switch {
	case offset != nil && limit != nil:
		start := clampIndex(*offset, len(lines))
		end := clampIndex(*offset+*limit, len(lines))
		return lines[start:end]
	case limit != nil:
		start := len(lines) - *limit
		if start < 0 {
			start = 0
		}
		return lines[start:]
	case offset != nil:
		start := clampIndex(*offset, len(lines))
		return lines[start:]
	default:
		return lines
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// writeStdin writes raw bytes to the child's stdin and flushes.
func (s *execSession) writeStdin(data []byte) error {
	if s.stdin == nil {
		return apperr.New(apperr.KindUnavailable, "procmgr", "stdin closed")
	}
	_, err := s.stdin.Write(data)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "procmgr", "write stdin", err)
	}
	return nil
}
