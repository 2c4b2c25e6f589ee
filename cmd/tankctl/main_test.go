package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tankbot/bridge"
	"github.com/arloliu/go-tankbot/command"
	"github.com/arloliu/go-tankbot/logger"
)

const waitTimeout = 3 * time.Second

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

// fakeRobot accepts one TCP link, publishes received lines and answers
// "status" with a battery line.
type fakeRobot struct {
	ln    net.Listener
	lines chan string
}

func startRobot(t *testing.T) *fakeRobot {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &fakeRobot{ln: ln, lines: make(chan string, 64)}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			r.lines <- line
			if line == "status" {
				_, _ = conn.Write([]byte("battery ok\r\n"))
			}
		}
	}()

	return r
}

func (r *fakeRobot) addr() string { return r.ln.Addr().String() }

func (r *fakeRobot) expect(t *testing.T, want ...string) {
	t.Helper()

	for _, w := range want {
		select {
		case got := <-r.lines:
			assert.Equal(t, w, got)
		case <-time.After(waitTimeout):
			t.Fatalf("robot did not receive %q", w)
		}
	}
}

// isolate keeps config files of the host out of the test.
func isolate(t *testing.T) {
	t.Helper()

	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TANKCTL_CONFIG", "")
}

func executeCommand(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buf := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(buf)
	root.SetErr(io.Discard)
	if in != nil {
		root.SetIn(in)
	}
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)

	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tankctl version "+version)
}

func TestSendCommand(t *testing.T) {
	isolate(t)
	robot := startRobot(t)

	out, err := executeCommand(t, nil, "send", "-t", "tcp", "-a", robot.addr(), "status", "m0f")
	require.NoError(t, err)

	robot.expect(t, "status", "m0f")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "> status")
	assert.Contains(t, out, "< battery ok")
}

func TestSendCommand_Errors(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, nil, "send", "-t", "tcp", "-a", "127.0.0.1:1", "café")
	require.ErrorIs(t, err, command.ErrInvalidCommand)

	_, err = executeCommand(t, nil, "send", "-t", "tcp", "status")
	require.ErrorIs(t, err, errNoAddress)

	_, err = executeCommand(t, nil, "send", "-t", "usb", "-a", "x", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transport")
}

func TestDriveCommand(t *testing.T) {
	isolate(t)
	robot := startRobot(t)

	_, err := executeCommand(t, nil, "drive", "-t", "tcp", "-a", robot.addr(), "-w", "0", "--for", "50ms", "--", "300", "-50")
	require.NoError(t, err)
	robot.expect(t, "tms200-50", "ts")

	_, err = executeCommand(t, nil, "drive", "-t", "tcp", "-a", robot.addr(), "fast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected <left> <right> or stop")
}

func TestArmCommand(t *testing.T) {
	isolate(t)
	robot := startRobot(t)

	_, err := executeCommand(t, nil, "arm", "-t", "tcp", "-a", robot.addr(), "-q", "-w", "0", "--for", "20ms", "claw-rotate", "b")
	require.NoError(t, err)
	robot.expect(t, "m1b", "m1s")

	_, err = executeCommand(t, nil, "arm", "-t", "tcp", "-a", robot.addr(), "gripper", "f")
	require.ErrorIs(t, err, command.ErrInvalidCommand)
}

func TestReplCommand(t *testing.T) {
	isolate(t)
	robot := startRobot(t)

	inR, inW := io.Pipe()
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := executeCommand(t, inR, "repl", "-t", "tcp", "-a", robot.addr())
		done <- result{out, err}
	}()

	_, err := io.WriteString(inW, "status\n")
	require.NoError(t, err)
	robot.expect(t, "status")

	_, err = io.WriteString(inW, ":stats\nQuit\n")
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "TANK ROBOT CONTROLLER")
		assert.Regexp(t, `connected sent=\d`, res.out)
		assert.Contains(t, res.out, "Exiting...")
	case <-time.After(waitTimeout):
		t.Fatal("repl did not exit")
	}
	_ = inW.Close()
}

func TestConfigInitCommand(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "tankctl.yaml")

	out, err := executeCommand(t, nil, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = executeCommand(t, nil, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = executeCommand(t, nil, "--config", path, "-t", "tcp", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "transport: tcp")
	assert.Contains(t, out, "send_timeout: 1s")
}

func TestServe(t *testing.T) {
	isolate(t)
	robot := startRobot(t)

	a := &app{transport: "tcp", address: robot.addr()}
	cmd := &cobra.Command{}
	cmd.SetErr(io.Discard)
	require.NoError(t, a.setup(cmd))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- a.serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(bridge.Intent{Type: bridge.IntentDrive, Left: 100, Right: 100}))
	robot.expect(t, "tms100100")

	require.NoError(t, ws.WriteJSON(bridge.Intent{Type: bridge.IntentStatus}))
	robot.expect(t, "status")

	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	var ev bridge.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, bridge.Event{Type: bridge.EventMessage, Frame: "battery ok"}, ev)

	var status statusResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		status = statusResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}

		return status.CommandsSent == 2
	}, waitTimeout, 20*time.Millisecond)
	assert.Equal(t, "connected", status.State)
	assert.Equal(t, 1, status.Clients)
	assert.True(t, strings.Contains(status.Target, robot.addr()))

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("serve did not return")
	}
}
