// Package sidecar supervises child processes speaking the envelope
// protocol over stdio: spawn and handshake, run forwarding, event
// multiplexing, cancellation, and spawn retry.
package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/antigravity-dev/backplane/internal/contract"
	"github.com/antigravity-dev/backplane/internal/protocol"
)

const (
	defaultHelloTimeout = 10 * time.Second
	defaultEventBuffer  = 256
)

// Spec describes how to launch a sidecar process.
type Spec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	// HelloTimeout bounds the wait for the handshake line. Zero means the
	// default.
	HelloTimeout time.Duration `json:"-"`
	// EventBuffer is the event channel capacity. Zero means the default.
	EventBuffer int `json:"-"`
}

// Hello is the data extracted from a sidecar's handshake envelope.
type Hello struct {
	ContractVersion string
	Backend         contract.BackendIdentity
	Capabilities    contract.CapabilityManifest
	Mode            contract.ExecutionMode
}

// Client is a connected sidecar that has completed its handshake. A
// client handles exactly one run.
type Client struct {
	Hello Hello

	spec    Spec
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	machine *StateMachine
	logger  *slog.Logger

	waitOnce sync.Once
	exitCode *int
}

// reap waits for the child exactly once and records its exit code.
func (c *Client) reap() *int {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()
		if err == nil {
			zero := 0
			c.exitCode = &zero
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			c.exitCode = &code
		}
	})
	return c.exitCode
}

// kill terminates the child and reaps it. Safe to call repeatedly.
func (c *Client) kill() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.reap()
}

// State exposes the lifecycle state, mainly for tests and diagnostics.
func (c *Client) State() State { return c.machine.State() }

// Close terminates the child if it is still running and reaps it. Used
// for clients that never run (probes, teardown paths).
func (c *Client) Close() {
	c.kill()
}

// Spawn launches the sidecar, forwards its stderr to the log at warn,
// reads the hello line, and verifies contract version compatibility.
func Spawn(ctx context.Context, spec Spec, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	machine := NewStateMachine()

	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		machine.Fail()
		return nil, spawnErr(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		machine.Fail()
		return nil, spawnErr(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		machine.Fail()
		return nil, spawnErr(err)
	}

	if err := cmd.Start(); err != nil {
		machine.Fail()
		return nil, spawnErr(err)
	}
	_ = machine.Transition(StateHandshaking)

	client := &Client{
		spec:    spec,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		machine: machine,
		logger:  logger.With("component", "sidecar", "command", spec.Command),
	}

	// Sidecar stderr is human logs only; forward at warn.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				client.logger.Warn("sidecar stderr", "line", line)
			}
		}
	}()

	hello, err := client.readHello(ctx)
	if err != nil {
		client.kill()
		machine.Fail()
		return nil, err
	}
	if !protocol.IsCompatible(contract.ContractVersion, hello.ContractVersion) {
		client.kill()
		machine.Fail()
		return nil, violation(fmt.Sprintf(
			"contract version %q is incompatible with %q",
			hello.ContractVersion, contract.ContractVersion))
	}
	client.Hello = hello
	_ = machine.Transition(StateReady)

	client.logger.Debug("sidecar hello", "backend", hello.Backend.ID, "version", hello.ContractVersion)
	return client, nil
}

// readHello reads and decodes the first stdout line within the timeout.
func (c *Client) readHello(ctx context.Context) (Hello, error) {
	timeout := c.spec.HelloTimeout
	if timeout <= 0 {
		timeout = defaultHelloTimeout
	}

	type lineResult struct {
		line string
		err  error
	}
	lineCh := make(chan lineResult, 1)
	go func() {
		line, err := c.stdout.ReadString('\n')
		lineCh <- lineResult{line, err}
	}()

	var result lineResult
	select {
	case result = <-lineCh:
	case <-time.After(timeout):
		return Hello{}, timeoutErr("no hello within " + timeout.String())
	case <-ctx.Done():
		return Hello{}, cancelledErr()
	}

	if result.err != nil {
		if result.line == "" && errors.Is(result.err, io.EOF) {
			// Child closed stdout before saying hello; surface its exit.
			return Hello{}, exitedErr(c.reap())
		}
		if !errors.Is(result.err, io.EOF) {
			return Hello{}, stdoutErr(result.err)
		}
	}

	env, err := protocol.Decode(result.line)
	if err != nil {
		return Hello{}, protocolErr(err)
	}
	if env.T != protocol.TypeHello {
		return Hello{}, violation(fmt.Sprintf("expected hello as first line, got %q", env.T))
	}
	return Hello{
		ContractVersion: env.ContractVersion,
		Backend:         *env.Backend,
		Capabilities:    env.Capabilities,
		Mode:            env.Mode,
	}, nil
}

// receiptOutcome is the terminal result of a run.
type receiptOutcome struct {
	receipt contract.Receipt
	err     error
}

// Run is an in-progress sidecar run: a live event stream plus a receipt
// future. Cancel kills the child; the receipt then resolves with a
// cancellation error. Children are always reaped.
type Run struct {
	// Events delivers the sidecar's events in order. Closed when the run
	// finishes, fails, or is cancelled.
	Events <-chan contract.AgentEvent

	events   chan contract.AgentEvent
	outcome  chan receiptOutcome
	done     chan struct{}
	cancel   context.CancelFunc
	dropOnce sync.Once
	dropped  chan struct{}
}

// Receipt blocks until the run resolves.
func (r *Run) Receipt(ctx context.Context) (contract.Receipt, error) {
	select {
	case out := <-r.outcome:
		return out.receipt, out.err
	case <-ctx.Done():
		return contract.Receipt{}, ctx.Err()
	}
}

// Cancel kills the sidecar and resolves the receipt with a cancellation
// error. Idempotent.
func (r *Run) Cancel() { r.cancel() }

// DropEvents tells the reader the consumer is gone: events stop being
// forwarded but the reader keeps draining stdout so the receipt still
// resolves.
func (r *Run) DropEvents() {
	r.dropOnce.Do(func() { close(r.dropped) })
}

// Wait blocks until the reader task has finished and the child is
// reaped.
func (r *Run) Wait() { <-r.done }

// Run sends the work order and starts the reader task. A client runs
// exactly once; the writer side is single-threaded.
func (c *Client) Run(ctx context.Context, runID string, wo contract.WorkOrder) (*Run, error) {
	if err := c.machine.Transition(StateRunning); err != nil {
		return nil, violation(err.Error())
	}

	line, err := protocol.Encode(protocol.Run(runID, wo))
	if err != nil {
		c.machine.Fail()
		c.kill()
		return nil, protocolErr(err)
	}
	if _, err := c.stdin.Write(line); err != nil {
		c.machine.Fail()
		c.kill()
		return nil, stdinErr(err)
	}

	buffer := c.spec.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		events:  make(chan contract.AgentEvent, buffer),
		outcome: make(chan receiptOutcome, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
		dropped: make(chan struct{}),
	}
	run.Events = run.events

	// Cancellation watcher: killing the child unblocks the reader.
	go func() {
		select {
		case <-runCtx.Done():
			c.kill()
		case <-run.done:
		}
	}()

	go c.read(runCtx, runID, run)
	return run, nil
}

// resolve records the terminal outcome; the first caller wins.
func (run *Run) resolve(receipt contract.Receipt, err error) {
	select {
	case run.outcome <- receiptOutcome{receipt, err}:
	default:
	}
}

// read owns the child's stdout for the run, multiplexing event, final,
// and fatal envelopes. Mismatched ref_ids are logged and dropped without
// advancing the state machine.
func (c *Client) read(ctx context.Context, runID string, run *Run) {
	defer func() {
		c.kill()
		close(run.events)
		close(run.done)
	}()

	for {
		line, err := c.stdout.ReadString('\n')
		if err != nil && line == "" {
			switch {
			case ctx.Err() != nil:
				c.machine.Fail()
				run.resolve(contract.Receipt{}, cancelledErr())
			case errors.Is(err, io.EOF):
				c.machine.Fail()
				run.resolve(contract.Receipt{}, exitedErr(c.reap()))
			default:
				c.machine.Fail()
				run.resolve(contract.Receipt{}, stdoutErr(err))
			}
			return
		}

		env, decodeErr := protocol.Decode(line)
		if decodeErr != nil {
			c.machine.Fail()
			run.resolve(contract.Receipt{}, protocolErr(decodeErr))
			return
		}

		switch env.T {
		case protocol.TypeEvent:
			if *env.RefID != runID {
				c.logger.Warn("dropping event for other run", "ref_id", *env.RefID)
				continue
			}
			select {
			case run.events <- *env.Event:
			case <-run.dropped:
				// Consumer gone; keep draining for final/fatal.
			case <-ctx.Done():
				c.machine.Fail()
				run.resolve(contract.Receipt{}, cancelledErr())
				return
			}

		case protocol.TypeFinal:
			if *env.RefID != runID {
				c.logger.Warn("dropping final for other run", "ref_id", *env.RefID)
				continue
			}
			_ = c.machine.Transition(StateCompleted)
			run.resolve(*env.Receipt, nil)
			return

		case protocol.TypeFatal:
			if env.RefID != nil && *env.RefID != runID {
				c.logger.Warn("dropping fatal for other run", "ref_id", *env.RefID)
				continue
			}
			c.machine.Fail()
			run.resolve(contract.Receipt{}, fatalErr(env.Error, env.ErrorCode))
			return

		case protocol.TypeHello:
			// Handshake already happened; a repeated hello is noise.
			c.logger.Warn("ignoring unexpected hello after handshake")
			continue

		default:
			c.machine.Fail()
			run.resolve(contract.Receipt{}, violation(fmt.Sprintf("unexpected %q envelope from sidecar", env.T)))
			return
		}
	}
}
