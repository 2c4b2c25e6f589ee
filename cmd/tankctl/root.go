package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-tankbot/config"
	"github.com/arloliu/go-tankbot/logger"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	// global flags
	cfgFile   string
	transport string
	address   string
	name      string
	channel   int
	logLevel  string

	// set during PersistentPreRunE
	cfg     *config.Config
	log     logger.Logger
	slogger *logger.SlogLogger
}

// newRootCmd builds the tankctl command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "tankctl",
		Short: "Remote control for the tank and arm robot",
		Long: `tankctl connects to the robot over Bluetooth RFCOMM (Serial Port Profile),
a serial device such as /dev/rfcomm0, or TCP, and sends newline terminated
commands. Lines sent back by the robot are printed as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.slogger != nil {
				return a.slogger.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./tankctl.yaml or ~/.tankctl/tankctl.yaml)")
	flags.StringVarP(&a.transport, "transport", "t", "", "link transport: rfcomm, serial or tcp")
	flags.StringVarP(&a.address, "address", "a", "", "device MAC, serial device path or host:port")
	flags.StringVarP(&a.name, "name", "n", "", "paired device name to look up when no address is given")
	flags.IntVar(&a.channel, "channel", 0, "RFCOMM channel (default 1)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newDevicesCmd(a),
		newAdapterCmd(a),
		newSendCmd(a),
		newDriveCmd(a),
		newArmCmd(a),
		newReplCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// setup loads the configuration, applies flag overrides and installs the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.transport != "" {
		cfg.Transport = a.transport
	}
	if a.address != "" {
		cfg.Device.Address = a.address
	}
	if a.name != "" {
		cfg.Device.Name = a.name
	}
	if a.channel != 0 {
		cfg.Device.Channel = a.channel
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.slogger = logger.New(cfg.LoggerOptions(cmd.ErrOrStderr()))
	a.log = a.slogger
	logger.SetLogger(a.log)

	return nil
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
