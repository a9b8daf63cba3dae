// Package container talks to the container runtime CLI (docker, podman, nerdctl).
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/srodi/memtop/pkg/types"
)

// ErrNoRuntime is returned when the runtime binary cannot be found in PATH.
var ErrNoRuntime = errors.New("container runtime not found")

// lookPath allows tests to stub binary discovery.
var lookPath = exec.LookPath

// Runner executes a command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Output runs name with args and returns stdout. Stderr is folded into the error.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Client wraps the runtime CLI. Every invocation is bounded by timeout.
type Client struct {
	bin     string
	runner  Runner
	timeout time.Duration
}

// NewClient resolves bin in PATH and returns a client that shells out to it.
func NewClient(bin string, timeout time.Duration) (*Client, error) {
	path, err := lookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoRuntime, bin, err)
	}
	return NewClientWithRunner(path, ExecRunner{}, timeout), nil
}

// NewClientWithRunner builds a client on top of an arbitrary Runner.
func NewClientWithRunner(bin string, runner Runner, timeout time.Duration) *Client {
	return &Client{bin: bin, runner: runner, timeout: timeout}
}

// Containers lists the running containers.
func (c *Client) Containers(ctx context.Context) ([]types.Container, error) {
	out, err := c.run(ctx, "ps", "--format", "{{.ID}}\t{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	return parseContainerList(out), nil
}

// Exec runs argv inside the container and returns stdout.
func (c *Client) Exec(ctx context.Context, id string, argv ...string) ([]byte, error) {
	args := append([]string{"exec", id}, argv...)
	return c.run(ctx, args...)
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.runner.Output(ctx, c.bin, args...)
}

func parseContainerList(out []byte) []types.Container {
	var containers []types.Container
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, name, found := strings.Cut(line, "\t")
		if !found {
			fields := strings.Fields(line)
			id = fields[0]
			if len(fields) > 1 {
				name = fields[1]
			}
		}
		id = strings.TrimSpace(id)
		// compose and older daemons report names with a leading slash
		name = strings.TrimPrefix(strings.TrimSpace(name), "/")
		if name == "" {
			name = id
		}
		containers = append(containers, types.Container{ID: id, Name: name})
	}
	return containers
}
