package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-tankbot/bluez"
	"github.com/arloliu/go-tankbot/transport/serialport"
)

func newDevicesCmd(a *app) *cobra.Command {
	var (
		all    bool
		serial bool
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List paired robots, or serial ports with --serial",
		Long: `Devices lists the paired Bluetooth devices that look like a robot: the
name contains one of discovery.name_patterns, or the device offers the
Serial Port Profile. --all lists every paired device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serial {
				ports, err := serialport.Ports()
				if err != nil {
					return fmt.Errorf("failed to list serial ports: %w", err)
				}
				for _, p := range ports {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}

				return nil
			}

			client, err := bluez.NewClient(a.log)
			if err != nil {
				return err
			}
			defer client.Close()

			devices, err := client.PairedDevices(cmd.Context())
			if err != nil {
				return err
			}

			if !all {
				devices = bluez.FilterRobots(devices, a.cfg.Discovery.NamePatterns)
			}

			return printDevices(cmd.OutOrStdout(), devices)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every paired device")
	cmd.Flags().BoolVar(&serial, "serial", false, "list serial ports instead")

	return cmd
}

func printDevices(out io.Writer, devices []bluez.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "no paired robots found, pair the robot in the system Bluetooth settings first")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tSPP\tCONNECTED")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Address, yesNo(d.HasSerialPort()), yesNo(d.Connected))
	}

	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func newAdapterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapter",
		Short: "Show whether Bluetooth is available and powered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := bluez.NewClient(a.log)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), bluez.Unsupported)
				return nil
			}
			defer client.Close()

			c, err := client.Capability(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c)

			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Power on the Bluetooth adapter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := bluez.NewClient(a.log)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Enable(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bluez.Available)

			return nil
		},
	})

	return cmd
}
