package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-tankbot/command"
)

const defaultFlushTimeout = 2 * time.Second

// sendFlags are shared by the one-shot commands.
type sendFlags struct {
	wait  time.Duration
	quiet bool
}

func (f *sendFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&f.wait, "wait", "w", 500*time.Millisecond, "time to keep the link open for replies")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print replies and link events")
}

// sendAll connects, sends cmds in order with an optional pause between
// them, waits for replies and disconnects.
func (a *app) sendAll(cmd *cobra.Command, f *sendFlags, pause time.Duration, cmds ...command.Command) error {
	ctx := cmd.Context()

	var out *console
	if f.quiet {
		out = newConsole(nopWriter{})
	} else {
		out = newConsole(cmd.OutOrStdout())
	}

	s, err := a.connect(ctx, out)
	if err != nil {
		return err
	}
	defer s.Close()

	for i, c := range cmds {
		if i > 0 && pause > 0 {
			if err := flush(ctx, s, uint64(i), defaultFlushTimeout); err != nil {
				return err
			}
			linger(ctx, pause)
		}

		if err := s.Send(c); err != nil {
			return fmt.Errorf("send %q: %w", c, err)
		}

		if !f.quiet {
			out.println(dimStyle.Render("> ") + c.String())
		}
	}

	if err := flush(ctx, s, uint64(len(cmds)), defaultFlushTimeout); err != nil {
		return err
	}

	linger(ctx, f.wait)

	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newSendCmd(a *app) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send <command>...",
		Short: "Send raw commands, e.g. tms150-100, m0f, status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds := make([]command.Command, 0, len(args))
			for _, arg := range args {
				c, err := command.Parse(arg)
				if err != nil {
					return err
				}
				cmds = append(cmds, c)
			}

			return a.sendAll(cmd, f, 0, cmds...)
		},
	}
	f.register(cmd)

	return cmd
}

func newDriveCmd(a *app) *cobra.Command {
	f := &sendFlags{}

	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "drive <left> <right> | drive stop",
		Short: "Drive the tracks at speeds in [-200, 200]",
		Long: `Drive sets the left and right track speeds. Values are clamped to
[-200, 200]; negative values drive backwards. With --for the tracks are
stopped again after the given duration.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if args[0] != "stop" {
					return fmt.Errorf("expected <left> <right> or stop, got %q", args[0])
				}

				return a.sendAll(cmd, f, 0, command.TankStop())
			}

			left, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid left speed: %w", err)
			}
			right, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid right speed: %w", err)
			}

			drive := command.TankDrive(left, right)
			if duration > 0 {
				return a.sendAll(cmd, f, duration, drive, command.TankStop())
			}

			return a.sendAll(cmd, f, 0, drive)
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&duration, "for", 0, "stop the tracks after this duration")

	return cmd
}

func newArmCmd(a *app) *cobra.Command {
	f := &sendFlags{}

	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "arm <motor> <forward|backward|stop> | arm stop-all",
		Short: "Move one arm joint",
		Long: `Arm moves one joint motor. Motors are given by id (0-3) or name:
claw-grab, claw-rotate, middle-reach, base-reach. With --for the motor is
stopped again after the given duration. "arm stop-all" stops every motor.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if args[0] != "stop-all" {
					return fmt.Errorf("expected <motor> <action> or stop-all, got %q", args[0])
				}

				return a.sendAll(cmd, f, 0, command.StopAll())
			}

			m, err := command.ParseMotor(args[0])
			if err != nil {
				return err
			}
			act, err := command.ParseAction(args[1])
			if err != nil {
				return err
			}

			move := command.MotorAction(m, act)
			if duration > 0 && act != command.Stop {
				return a.sendAll(cmd, f, duration, move, command.MotorStop(m))
			}

			return a.sendAll(cmd, f, 0, move)
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&duration, "for", 0, "stop the motor after this duration")

	return cmd
}
