package liveness

import (
	"context"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// TCPProber treats a host as reachable when a TCP connection to Port
// succeeds. The default port is WinRM, which the remote cleanup needs anyway.
type TCPProber struct {
	Port    int
	Timeout time.Duration
}

func (p TCPProber) Probe(ctx context.Context, host string) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.Port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ICMPProber sends a single echo request, like Test-Connection -Count 1.
type ICMPProber struct {
	Timeout    time.Duration
	Privileged bool
}

func (p ICMPProber) Probe(ctx context.Context, host string) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)
	if err := pinger.RunWithContext(ctx); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// NewProber returns the prober named by kind ("tcp" or "icmp").
func NewProber(kind string, port int, timeout time.Duration, privileged bool) Prober {
	if kind == "icmp" {
		return ICMPProber{Timeout: timeout, Privileged: privileged}
	}
	return TCPProber{Port: port, Timeout: timeout}
}
