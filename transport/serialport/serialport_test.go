package serialport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tankbot/transport"
)

func TestRegistered(t *testing.T) {
	d, err := transport.Lookup(Name)
	require.NoError(t, err)
	assert.IsType(t, &Dialer{}, d)
}

func TestBaudRate(t *testing.T) {
	assert.Equal(t, DefaultBaudRate, (&Dialer{}).baudRate())
	assert.Equal(t, 9600, (&Dialer{BaudRate: 9600}).baudRate())
}

func TestDial_Errors(t *testing.T) {
	d := &Dialer{}

	_, err := d.Dial(context.Background(), transport.Target{})
	require.ErrorContains(t, err, "empty device path")

	missing := filepath.Join(t.TempDir(), "rfcomm9")
	_, err = d.Dial(context.Background(), transport.Target{Address: missing})
	require.ErrorContains(t, err, "failed to open")
}
