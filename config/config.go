package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is used when no port argument is given.
	DefaultPort = 8000

	// LoopbackHost is the only address the server binds to.
	LoopbackHost = "127.0.0.1"

	DefaultShutdownTimeout = 10 * time.Second
)

var ErrInvalidPort = errors.New("invalid port")

type Config struct {
	Host            string
	Port            int
	Root            string
	ShutdownTimeout time.Duration
}

// DefaultConfig serves the current working directory on the loopback
// interface at DefaultPort.
func DefaultConfig() (*Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &Config{
		Host:            LoopbackHost,
		Port:            DefaultPort,
		Root:            workDir,
		ShutdownTimeout: DefaultShutdownTimeout,
	}, nil
}

// FromArgs builds the config for the optional positional port argument.
// An empty arg keeps DefaultPort.
func FromArgs(portArg string) (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	if portArg == "" {
		return cfg, nil
	}

	port, err := ParsePort(portArg)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	return cfg, nil
}

// ParsePort parses a TCP port in the range 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w %q: not an integer", ErrInvalidPort, s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w %d: must be between 1 and 65535", ErrInvalidPort, port)
	}
	return port, nil
}

// Addr is the host:port the listener binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL is the address shown to the operator. Loopback is displayed as
// localhost.
func (c *Config) URL() string {
	host := c.Host
	if host == LoopbackHost || host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// WithPort returns a copy of c bound to port. The server uses it to record
// the real port after binding port 0.
func (c *Config) WithPort(port int) *Config {
	cp := *c
	cp.Port = port
	return &cp
}
