package tcpconn

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tankbot/transport"
)

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		line, _ := bufio.NewReader(conn).ReadString('\n')
		lines <- line
	}()

	d, err := transport.Lookup(Name)
	require.NoError(t, err)

	s, err := d.Dial(context.Background(), transport.Target{Name: "bridge", Address: ln.Addr().String()})
	require.NoError(t, err)
	defer s.Close()

	_, isInput := s.(transport.InputCloser)
	_, isOutput := s.(transport.OutputCloser)
	assert.True(t, isInput)
	assert.True(t, isOutput)

	_, err = s.Write([]byte("ts\n"))
	require.NoError(t, err)
	require.NoError(t, s.(transport.OutputCloser).CloseWrite())

	select {
	case line := <-lines:
		assert.Equal(t, "ts\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not receive the command")
	}
}

func TestDial_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Dialer{}).Dial(ctx, transport.Target{Address: "127.0.0.1:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
