package engine

import (
	"fmt"
	"net/netip"
	"time"
)

// Config holds the listening socket and event loop parameters.
//
// Default values (applied by New if zero):
//   - Backlog: 128
//   - MaxEvents: 64
//   - WaitTimeout: 2s
//   - AcceptBatch: 64
//
// Zero means disabled for MaxConnections, IdleTimeout and AcceptRate.
type Config struct {
	// Address is an IPv4 or IPv6 literal to bind. Empty binds all IPv4
	// interfaces.
	Address string

	// Port to listen on. 0 picks an ephemeral port; read it back with Port().
	Port int

	// Backlog is the listen(2) queue length.
	Backlog int

	// MaxEvents caps the events returned by one epoll_wait.
	MaxEvents int

	// WaitTimeout bounds one epoll_wait, so Step returns periodically even
	// with no traffic.
	WaitTimeout time.Duration

	// AcceptBatch caps the connections accepted for a single notification.
	// When reached, the next Step accepts again without waiting.
	AcceptBatch int

	// MaxConnections caps the connection table. Connections accepted beyond
	// it are closed at once.
	MaxConnections int

	// IdleTimeout closes attached connections that stay silent this long.
	IdleTimeout time.Duration

	// AcceptRate is the sustained number of connections admitted per
	// second; AcceptBurst is the bucket size.
	AcceptRate  uint
	AcceptBurst uint
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Backlog <= 0 {
		c.Backlog = 128
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 64
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 2 * time.Second
	}
	if c.AcceptBatch <= 0 {
		c.AcceptBatch = 64
	}
}

// validate checks the values applyDefaults cannot fix.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.Address != "" {
		if _, err := netip.ParseAddr(c.Address); err != nil {
			return fmt.Errorf("invalid address %q: must be an IP literal", c.Address)
		}
	}
	return nil
}
