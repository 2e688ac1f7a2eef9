package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/rig"
)

var (
	// ErrStopped is returned by Send after the bridge process has exited.
	ErrStopped = errors.New("bridge stopped")
	// ErrQueueFull is returned by Send when the bridge is not keeping up.
	ErrQueueFull = errors.New("bridge queue full")
)

const (
	queueSize   = 4
	stopTimeout = 2 * time.Second
)

// Process is a running bridge. It implements retarget.Sink: each frame is
// written as one JSON line to the bridge's stdin.
type Process struct {
	bridge *Bridge
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	logger *slog.Logger

	queue      chan rig.Frame
	done       chan struct{}
	stderrDone chan struct{}
	dropped    atomic.Uint64

	mu      sync.Mutex
	closing bool
	exitErr error
}

// Start launches the bridge executable in its own directory.
func Start(ctx context.Context, b *Bridge) (*Process, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, b.Executable, b.Manifest.Args...)
	cmd.Dir = b.Path

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge %s: stdin: %w", b.Manifest.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge %s: stderr: %w", b.Manifest.Name, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("bridge %s: start: %w", b.Manifest.Name, err)
	}

	p := &Process{
		bridge:     b,
		cmd:        cmd,
		stdin:      stdin,
		cancel:     cancel,
		logger:     log.With("component", "bridge", "bridge", b.Manifest.Name),
		queue:      make(chan rig.Frame, queueSize),
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}

	go p.logStderr(stderr)
	go p.writeLoop()
	go p.wait()

	p.logger.Info("bridge started", "pid", cmd.Process.Pid)
	return p, nil
}

// Name implements retarget.Sink.
func (p *Process) Name() string {
	return "bridge:" + p.bridge.Manifest.Name
}

// Send queues a frame for the bridge without blocking.
func (p *Process) Send(frame rig.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing {
		return ErrStopped
	}
	select {
	case <-p.done:
		return ErrStopped
	default:
	}

	select {
	case p.queue <- frame:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many frames were dropped because the queue was full.
func (p *Process) Dropped() uint64 {
	return p.dropped.Load()
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Close flushes queued frames, closes stdin and waits for the process to exit.
// A bridge that does not exit in time is killed.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closing = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		p.logger.Warn("bridge did not exit, killing")
		p.cancel()
		<-p.done
	}
	p.cancel()
	return nil
}

func (p *Process) writeLoop() {
	defer p.stdin.Close()

	w := bufio.NewWriter(p.stdin)
	enc := json.NewEncoder(w)
	for frame := range p.queue {
		if err := enc.Encode(frame); err != nil {
			p.logger.Debug("encode failed", "error", err)
			continue
		}
		if err := w.Flush(); err != nil {
			p.logger.Debug("write failed", "error", err)
			// Drain until Close.
			for range p.queue {
			}
			return
		}
	}
}

func (p *Process) wait() {
	<-p.stderrDone
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		p.logger.Warn("bridge exited", "error", err)
	} else {
		p.logger.Info("bridge exited")
	}
}

func (p *Process) logStderr(r io.Reader) {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug("bridge stderr", "line", scanner.Text())
	}
}
