package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Probe statuses, most specific first. A container is Healthy only when it
// is running, at least one published port accepts TCP, and an HTTP GET on an
// open port returns 200.
const (
	StatusHealthy     = "healthy"
	StatusUnhealthy   = "unhealthy"
	StatusNotRunning  = "not_running"
	StatusNoPorts     = "no_ports"
	StatusNoOpenPorts = "no_open_ports"
	StatusError       = "error"
)

// Result is the outcome of one container probe.
type Result struct {
	Healthy bool              `json:"healthy"`
	Status  string            `json:"status"`
	State   string            `json:"state"`
	Ports   map[string]string `json:"ports,omitempty"` // host port -> "open"/"closed"
	HTTP    string            `json:"http,omitempty"`  // "ok" / "failed"
}

// Details renders the result for durable storage alongside the check row.
func (r Result) Details() json.RawMessage {
	raw, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// Checker probes container health.
type Checker interface {
	// Check runs a single probe against a container by name.
	Check(ctx context.Context, container string) Result

	// WaitUntilHealthy polls Check once a second until the container is
	// healthy or the timeout passes.
	WaitUntilHealthy(ctx context.Context, container string, timeout time.Duration) bool

	// ContainerID resolves the runtime ID of a named container.
	ContainerID(ctx context.Context, container string) (string, error)

	// Logs returns the last n lines of a container's output.
	Logs(ctx context.Context, container string, lines int) (string, error)
}

// runner executes one podman invocation. Injected in tests.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func execPodman(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "podman", args...).Output()
}

// PodmanChecker probes containers through the podman CLI plus direct TCP and
// HTTP connections to their published ports.
type PodmanChecker struct {
	logger zerolog.Logger
	run    runner
	dial   func(network, addr string, timeout time.Duration) (net.Conn, error)
	client *http.Client
	host   string
}

func NewPodmanChecker(logger zerolog.Logger) *PodmanChecker {
	return &PodmanChecker{
		logger: logger.With().Str("component", "health").Logger(),
		run:    execPodman,
		dial:   net.DialTimeout,
		client: &http.Client{Timeout: time.Second},
		host:   "localhost",
	}
}

// Available verifies the podman binary responds at all.
func (c *PodmanChecker) Available(ctx context.Context) error {
	if _, err := c.run(ctx, "--version"); err != nil {
		return fmt.Errorf("podman not available: %w", err)
	}
	return nil
}

func (c *PodmanChecker) Check(ctx context.Context, container string) Result {
	state, err := c.containerState(ctx, container)
	if err != nil {
		c.logger.Error().Err(err).Str("container", container).Msg("state inspection failed")
		return Result{Status: StatusError, State: "error"}
	}
	if state != "running" {
		c.logger.Warn().Str("container", container).Str("state", state).Msg("container not running")
		return Result{Status: StatusNotRunning, State: state}
	}

	ports, err := c.publishedPorts(ctx, container)
	if err != nil {
		c.logger.Warn().Err(err).Str("container", container).Msg("port inspection failed")
		return Result{Status: StatusNoPorts, State: state}
	}
	if len(ports) == 0 {
		return Result{Status: StatusNoPorts, State: state}
	}

	portStates := make(map[string]string, len(ports))
	var open []int
	for _, port := range ports {
		if c.tcpOpen(port) {
			portStates[strconv.Itoa(port)] = "open"
			open = append(open, port)
		} else {
			portStates[strconv.Itoa(port)] = "closed"
		}
	}
	if len(open) == 0 {
		return Result{Status: StatusNoOpenPorts, State: state, Ports: portStates}
	}

	httpOK := false
	for _, port := range open {
		if c.httpOK(ctx, port) {
			httpOK = true
			break
		}
	}

	result := Result{
		Healthy: httpOK,
		Status:  StatusUnhealthy,
		State:   state,
		Ports:   portStates,
		HTTP:    "failed",
	}
	if httpOK {
		result.Status = StatusHealthy
		result.HTTP = "ok"
	}
	c.logger.Debug().
		Str("container", container).
		Str("status", result.Status).
		Bool("healthy", result.Healthy).
		Msg("health probe")
	return result
}

func (c *PodmanChecker) WaitUntilHealthy(ctx context.Context, container string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Check(ctx, container).Healthy {
			return true
		}
		if time.Now().After(deadline) {
			c.logger.Warn().
				Str("container", container).
				Dur("timeout", timeout).
				Msg("container did not become healthy in time")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
}

func (c *PodmanChecker) ContainerID(ctx context.Context, container string) (string, error) {
	output, err := c.run(ctx, "inspect", "--format", "{{.Id}}", container)
	if err != nil {
		return "", fmt.Errorf("inspect container id: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func (c *PodmanChecker) Logs(ctx context.Context, container string, lines int) (string, error) {
	output, err := c.run(ctx, "logs", "--tail", strconv.Itoa(lines), container)
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	return string(output), nil
}

func (c *PodmanChecker) containerState(ctx context.Context, container string) (string, error) {
	output, err := c.run(ctx, "inspect", "--format", "{{.State.Status}}", container)
	if err != nil {
		return "", fmt.Errorf("inspect state: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// publishedPorts returns the host-side ports a container publishes, sorted.
func (c *PodmanChecker) publishedPorts(ctx context.Context, container string) ([]int, error) {
	output, err := c.run(ctx, "inspect", "--format", "{{json .HostConfig.PortBindings}}", container)
	if err != nil {
		return nil, fmt.Errorf("inspect port bindings: %w", err)
	}
	raw := strings.TrimSpace(string(output))
	if raw == "" || raw == "null" || raw == "<nil>" {
		return nil, nil
	}

	// {"8080/tcp":[{"HostIp":"","HostPort":"8080"}]}
	var bindings map[string][]struct {
		HostPort string `json:"HostPort"`
	}
	if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
		return nil, fmt.Errorf("parse port bindings %q: %w", raw, err)
	}

	seen := make(map[int]struct{})
	var ports []int
	for _, hosts := range bindings {
		for _, h := range hosts {
			port, err := strconv.Atoi(h.HostPort)
			if err != nil || port == 0 {
				continue
			}
			if _, dup := seen[port]; dup {
				continue
			}
			seen[port] = struct{}{}
			ports = append(ports, port)
		}
	}
	sort.Ints(ports)
	return ports, nil
}

func (c *PodmanChecker) tcpOpen(port int) bool {
	conn, err := c.dial("tcp", net.JoinHostPort(c.host, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *PodmanChecker) httpOK(ctx context.Context, port int) bool {
	url := fmt.Sprintf("http://%s:%d/", c.host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
