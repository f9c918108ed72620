package bus

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	DefaultSystemBusAddress = "unix:path=/var/run/dbus/system_bus_socket"
	systemBusAddressEnv     = "DBUS_SYSTEM_BUS_ADDRESS"

	busDest = "org.freedesktop.DBus"
)

// Transport is the broker session underneath a Conn. The godbus backed
// implementation is returned by DialTransport; tests substitute bustest.
type Transport interface {
	// Call sends a method call and blocks until the correlated reply
	// arrives or ctx ends. An error reply is reported as dbus.Error.
	Call(ctx context.Context, dest string, path dbus.ObjectPath, iface, method string, args ...any) ([]any, error)
	AddMatch(rule string) error
	RemoveMatch(rule string) error
	// Signals yields buffered inbound signals. Pump drains it without blocking.
	Signals() <-chan *dbus.Signal
	Close() error
}

// SystemBusAddress resolves the system bus address: the explicit value,
// then DBUS_SYSTEM_BUS_ADDRESS, then the well-known socket.
func SystemBusAddress(explicit string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return s
	}
	if s := os.Getenv(systemBusAddressEnv); s != "" {
		return s
	}
	return DefaultSystemBusAddress
}

// checkSocket fails early with a precise reason when a unix:path= socket
// cannot be opened for writing. Other address kinds are left to the dialer.
func checkSocket(addr string) error {
	const pref = "unix:path="
	if !strings.HasPrefix(addr, pref) {
		return nil
	}
	path := addr[len(pref):]
	if i := strings.IndexByte(path, ','); i >= 0 {
		path = path[:i]
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

type godbusTransport struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
}

// DialTransport connects, authenticates and says Hello to the bus at addr.
func DialTransport(addr string, signalBuffer int) (Transport, error) {
	if err := checkSocket(addr); err != nil {
		return nil, err
	}
	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if signalBuffer <= 0 {
		signalBuffer = 64
	}
	t := &godbusTransport{
		conn:    conn,
		signals: make(chan *dbus.Signal, signalBuffer),
	}
	conn.Signal(t.signals)
	return t, nil
}

func (t *godbusTransport) Call(ctx context.Context, dest string, path dbus.ObjectPath, iface, method string, args ...any) ([]any, error) {
	call := t.conn.Object(dest, path).CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return call.Body, call.Err
	}
	return call.Body, nil
}

func (t *godbusTransport) AddMatch(rule string) error {
	return t.conn.BusObject().Call(busDest+".AddMatch", 0, rule).Err
}

func (t *godbusTransport) RemoveMatch(rule string) error {
	return t.conn.BusObject().Call(busDest+".RemoveMatch", 0, rule).Err
}

func (t *godbusTransport) Signals() <-chan *dbus.Signal {
	return t.signals
}

func (t *godbusTransport) Close() error {
	t.conn.RemoveSignal(t.signals)
	return t.conn.Close()
}
