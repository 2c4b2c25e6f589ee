package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-tankbot/session"
)

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("15")).
	Background(lipgloss.Color("57")).
	Padding(0, 1)

const replHelp = `Commands are sent to the robot as typed:
  tank:    tf[spd] tb[spd] tl[spd] tr[spd] ttl[spd] ttr[spd] ts tms<L><R>
  arm:     m0f m0b m0s (claw grab), m1f m1b (claw rotate),
           m2f m2b (middle reach), m3f m3b (base reach)
  system:  status s h
Local commands:
  :stats      show link counters
  :reconnect  reconnect after the link dropped
  exit, quit, q or Ctrl+D to leave`

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive controller: type commands, see replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	con := newConsole(out)

	s, err := a.connect(ctx, con)
	if err != nil {
		return err
	}
	defer s.Close()

	con.println(bannerStyle.Render("TANK ROBOT CONTROLLER"))
	con.println(dimStyle.Render(replHelp))

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool

		select {
		case <-ctx.Done():
			con.println("Exiting...")
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue

		case "exit", "quit", "q":
			con.println("Exiting...")
			return nil

		case ":stats":
			con.println(s.State().String() + " " + sessionStateLine(s))
			continue

		case ":reconnect":
			a.reconnect(ctx, s, con)
			continue
		}

		if err := s.SendString(line); err != nil {
			if errors.Is(err, session.ErrNotConnected) {
				con.println(errorStyle.Render("not connected") + dimStyle.Render(", use :reconnect"))
				continue
			}
			con.println(errorStyle.Render("error") + " " + err.Error())
		}
	}
}

func (a *app) reconnect(ctx context.Context, s *session.Session, con *console) {
	if s.State() != session.Idle {
		con.println(dimStyle.Render("already " + s.State().String()))
		return
	}

	target, err := a.resolveTarget(ctx)
	if err != nil {
		con.println(errorStyle.Render("error") + " " + err.Error())
		return
	}

	// failures are reported through the listener.
	_ = s.ConnectAndWait(ctx, target)
}
