// Package bluez queries the BlueZ daemon over the system D-Bus for the
// Bluetooth adapter state and the paired robots.
//
// It covers what a controller needs before connecting: whether the host
// has an adapter at all, whether it is powered, powering it on, and listing
// paired devices that look like a robot.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
)

const (
	busName = "org.bluez"

	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"

	getManagedObjects = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	setProperty       = "org.freedesktop.DBus.Properties.Set"
)

var (
	// ErrUnsupported means the host has no Bluetooth adapter or no BlueZ daemon.
	ErrUnsupported = errors.New("bluez: bluetooth is not supported on this host")

	// ErrDisabled means the adapter exists but is powered off.
	ErrDisabled = errors.New("bluez: bluetooth adapter is disabled")
)

// DefaultNamePatterns are the name fragments of robot firmware builds.
var DefaultNamePatterns = []string{"ESP32", "Tank", "Robot"}

// Capability is the Bluetooth readiness of the host.
type Capability int

const (
	Unsupported Capability = iota
	Disabled
	Available
)

func (c Capability) String() string {
	switch c {
	case Unsupported:
		return "unsupported"
	case Disabled:
		return "disabled"
	case Available:
		return "available"
	default:
		return "unknown"
	}
}

// Err returns ErrUnsupported, ErrDisabled or nil.
func (c Capability) Err() error {
	switch c {
	case Unsupported:
		return ErrUnsupported
	case Disabled:
		return ErrDisabled
	default:
		return nil
	}
}

// Device is a Bluetooth device known to BlueZ.
type Device struct {
	Path      dbus.ObjectPath
	Adapter   dbus.ObjectPath
	Name      string
	Address   string
	Paired    bool
	Connected bool
	UUIDs     []string
}

// HasSerialPort reports whether the device advertises the Serial Port Profile.
func (d Device) HasSerialPort() bool {
	for _, s := range d.UUIDs {
		if id, err := uuid.Parse(s); err == nil && id == transport.SerialPortProfile {
			return true
		}
	}

	return false
}

// Target returns the RFCOMM target of the device on the default channel.
func (d Device) Target() transport.Target {
	return transport.Target{Name: d.Name, Address: d.Address, Channel: transport.DefaultChannel}
}

// caller is the subset of dbus.BusObject used here.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Client talks to BlueZ.
type Client struct {
	conn   *dbus.Conn
	object func(path dbus.ObjectPath) caller
	logger logger.Logger
}

// NewClient connects to the system bus. A D-Bus failure is reported as
// ErrUnsupported, since without the bus BlueZ cannot be reached either.
func NewClient(l logger.Logger) (*Client, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to system D-Bus: %w", ErrUnsupported, err)
	}

	return &Client{
		conn:   conn,
		object: func(path dbus.ObjectPath) caller { return conn.Object(busName, path) },
		logger: l,
	}, nil
}

// Close closes the private bus connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Capability reports whether Bluetooth is usable on this host.
func (c *Client) Capability(ctx context.Context) (Capability, error) {
	objects, err := c.managedObjects(ctx)
	if err != nil {
		// BlueZ not running.
		c.logger.Debug("bluez: managed objects unavailable", "error", err)
		return Unsupported, nil
	}

	return capabilityOf(objects), nil
}

// Enable powers on the first adapter. It returns ErrUnsupported when there
// is no adapter.
func (c *Client) Enable(ctx context.Context) error {
	objects, err := c.managedObjects(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	path, powered, ok := findAdapter(objects)
	if !ok {
		return ErrUnsupported
	}

	if powered {
		return nil
	}

	c.logger.Info("bluez: powering on adapter", "adapter", string(path))

	call := c.object(path).CallWithContext(ctx, setProperty, 0, adapterInterface, "Powered", dbus.MakeVariant(true))
	if call.Err != nil {
		return fmt.Errorf("bluez: power on %s: %w", path, call.Err)
	}

	return nil
}

// PairedDevices lists the paired devices sorted by name. It fails with
// ErrUnsupported or ErrDisabled when the adapter is not usable.
func (c *Client) PairedDevices(ctx context.Context) ([]Device, error) {
	objects, err := c.managedObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	if err := capabilityOf(objects).Err(); err != nil {
		return nil, err
	}

	var paired []Device
	for _, d := range devicesOf(objects) {
		if d.Paired {
			paired = append(paired, d)
		}
	}

	return paired, nil
}

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func (c *Client) managedObjects(ctx context.Context) (managedObjects, error) {
	objects := make(managedObjects)

	if err := c.object("/").CallWithContext(ctx, getManagedObjects, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez: get managed objects: %w", err)
	}

	return objects, nil
}

// findAdapter returns the adapter with the lowest path, hci0 before hci1.
func findAdapter(objects managedObjects) (dbus.ObjectPath, bool, bool) {
	var (
		found   dbus.ObjectPath
		powered bool
	)

	for path, ifaces := range objects {
		props, ok := ifaces[adapterInterface]
		if !ok {
			continue
		}

		if found == "" || path < found {
			found = path
			powered = boolProp(props, "Powered")
		}
	}

	return found, powered, found != ""
}

func capabilityOf(objects managedObjects) Capability {
	_, powered, ok := findAdapter(objects)

	switch {
	case !ok:
		return Unsupported
	case !powered:
		return Disabled
	default:
		return Available
	}
}

func devicesOf(objects managedObjects) []Device {
	var devices []Device

	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}

		d := Device{
			Path:      path,
			Adapter:   pathProp(props, "Adapter"),
			Name:      stringProp(props, "Name"),
			Address:   stringProp(props, "Address"),
			Paired:    boolProp(props, "Paired"),
			Connected: boolProp(props, "Connected"),
			UUIDs:     stringsProp(props, "UUIDs"),
		}
		if d.Name == "" {
			d.Name = stringProp(props, "Alias")
		}

		devices = append(devices, d)
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}

		return devices[i].Address < devices[j].Address
	})

	return devices
}

// FilterRobots keeps the devices whose name contains one of patterns,
// case-insensitively, or that advertise the Serial Port Profile. Nil
// patterns mean DefaultNamePatterns.
func FilterRobots(devices []Device, patterns []string) []Device {
	if patterns == nil {
		patterns = DefaultNamePatterns
	}

	var robots []Device
	for _, d := range devices {
		if d.HasSerialPort() || nameMatches(d.Name, patterns) {
			robots = append(robots, d)
		}
	}

	return robots
}

// FindByName returns the device named name, case-insensitively. An exact
// match wins over a partial one.
func FindByName(devices []Device, name string) (Device, bool) {
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}

	for _, d := range devices {
		if nameMatches(d.Name, []string{name}) {
			return d, true
		}
	}

	return Device{}, false
}

func nameMatches(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}

	return false
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)

	return s
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)

	return b
}

func stringsProp(props map[string]dbus.Variant, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	s, _ := v.Value().([]string)

	return s
}

func pathProp(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	v, ok := props[key]
	if !ok {
		return ""
	}
	p, _ := v.Value().(dbus.ObjectPath)

	return p
}
