//go:build !linux

package rfcomm

import (
	"context"

	"github.com/arloliu/go-tankbot/transport"
)

func dial(context.Context, [6]byte, uint8, string) (transport.Stream, error) {
	return nil, ErrUnsupported
}
