// Package rfcomm dials Bluetooth Classic RFCOMM (Serial Port Profile) links
// directly through kernel sockets, without binding a /dev/rfcommN device.
//
// Importing the package registers the dialer as "rfcomm" in the default
// transport registry. RFCOMM sockets are only available on Linux; on other
// platforms Dial fails with ErrUnsupported.
package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
)

// Name is the registry name of the dialer.
const Name = "rfcomm"

// ErrUnsupported is returned by Dial on platforms without RFCOMM sockets.
var ErrUnsupported = errors.New("rfcomm: RFCOMM sockets are not supported on this platform")

// pollInterval bounds how long a pending connect waits before re-checking ctx.
const pollInterval = 100 * time.Millisecond

func init() {
	transport.Register(Name, &Dialer{})
}

// Dialer connects to target.Address (a device MAC) on target.RFCOMMChannel().
type Dialer struct {
	// Logger defaults to the process-wide logger.
	Logger logger.Logger
}

// Dial opens an RFCOMM stream. It blocks until the baseband connection is
// up, ctx is done, or the connection is refused.
func (d *Dialer) Dial(ctx context.Context, target transport.Target) (transport.Stream, error) {
	mac, err := transport.ParseMAC(target.Address)
	if err != nil {
		return nil, err
	}

	channel := target.RFCOMMChannel()
	if channel > 30 {
		return nil, fmt.Errorf("rfcomm: channel %d out of range 1..30", channel)
	}

	d.log().Debug("rfcomm: connecting", "address", target.Address, "channel", channel)

	s, err := dial(ctx, bdaddr(mac), uint8(channel), target.Address)
	if err != nil {
		return nil, fmt.Errorf("rfcomm: connect %s channel %d: %w", target.Address, channel, err)
	}

	d.log().Debug("rfcomm: connected", "address", target.Address, "channel", channel)

	return s, nil
}

func (d *Dialer) log() logger.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return logger.GetLogger()
}

// bdaddr converts a display-order MAC to the little-endian bdaddr_t layout.
func bdaddr(mac [6]byte) [6]byte {
	var out [6]byte
	for i := range mac {
		out[i] = mac[len(mac)-1-i]
	}

	return out
}
