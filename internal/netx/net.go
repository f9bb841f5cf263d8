// Package netx answers whether the network is reachable before a process
// starts talking to remote backends.
package netx

import (
	"context"
	"net"
	"time"
)

const DefaultProbeTimeout = 3 * time.Second

// Connectivity reports whether remote backends can be reached.
type Connectivity interface {
	Available(ctx context.Context) bool
}

type always struct{}

func (always) Available(context.Context) bool { return true }

// Always is used when no probe address is configured.
func Always() Connectivity { return always{} }

// Probe dials a TCP address; a successful connect means the network is up.
type Probe struct {
	addr    string
	timeout time.Duration
	dialer  func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewConnectivity returns a Probe for addr, or Always when addr is empty.
func NewConnectivity(addr string, timeout time.Duration) Connectivity {
	if addr == "" {
		return Always()
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	d := &net.Dialer{}
	return &Probe{addr: addr, timeout: timeout, dialer: d.DialContext}
}

func (p *Probe) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
