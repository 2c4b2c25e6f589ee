// Package tcpconn dials robots exposed through a Wi-Fi serial bridge
// (for example an ESP32 running a telnet-to-UART bridge), using the same
// line protocol as the radio link.
//
// Importing the package registers the dialer as "tcp" in the default
// transport registry.
package tcpconn

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
)

// Name is the registry name of the dialer.
const Name = "tcp"

const defaultKeepAlive = 15 * time.Second

func init() {
	transport.Register(Name, &Dialer{})
}

// Dialer connects to target.Address as host:port.
type Dialer struct {
	// KeepAlive defaults to 15 seconds, a negative value disables keep-alive.
	KeepAlive time.Duration
	// Logger defaults to the process-wide logger.
	Logger logger.Logger
}

// Dial returns a *net.TCPConn, which supports half close.
func (d *Dialer) Dial(ctx context.Context, target transport.Target) (transport.Stream, error) {
	keepAlive := d.KeepAlive
	if keepAlive == 0 {
		keepAlive = defaultKeepAlive
	}

	nd := net.Dialer{KeepAlive: keepAlive}

	conn, err := nd.DialContext(ctx, "tcp", target.Address)
	if err != nil {
		return nil, fmt.Errorf("tcpconn: dial %s: %w", target.Address, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		// commands are tiny and latency-sensitive.
		_ = tcp.SetNoDelay(true)
	}

	log := d.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log.Debug("tcpconn: connected", "remoteAddr", conn.RemoteAddr().String())

	return conn, nil
}
