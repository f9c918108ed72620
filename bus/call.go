package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// Call is a method call on a proxy's object. Parameters are appended in
// call order; Call performs the round trip, after which the value reads as
// a Message over the reply arguments.
type Call struct {
	Message

	conn    *Conn
	service string
	path    string
	iface   string
	method  string
	params  []any
	done    bool
}

func newCall(p *Proxy, method string) *Call {
	return &Call{
		Message: Message{log: p.conn.log},
		conn:    p.conn,
		service: p.service,
		path:    p.path,
		iface:   p.iface,
		method:  method,
	}
}

func (c *Call) Method() string { return c.method }

// Params returns the wire values appended so far.
func (c *Call) Params() []any { return c.params }

func (c *Call) param(v any) *Call {
	if c.done {
		c.log.WithField("method", c.method).Warn("bus: parameter appended after call, ignored")
		return c
	}
	c.params = append(c.params, v)
	return c
}

// ParamBool appends a boolean.
func (c *Call) ParamBool(b bool) *Call { return c.param(b) }

// ParamInt appends n as an unsigned 32-bit integer. Negative values wrap;
// ReadInt on the peer side reinterprets them as signed again.
func (c *Call) ParamInt(n int) *Call { return c.param(uint32(n)) }

// ParamString appends a string.
func (c *Call) ParamString(s string) *Call { return c.param(s) }

// ParamDict appends an a{sv} array whose values are all string variants.
func (c *Call) ParamDict(m map[string]string) *Call {
	dict := make(map[string]dbus.Variant, len(m))
	for k, v := range m {
		dict[k] = dbus.MakeVariant(v)
	}
	return c.param(dict)
}

// Call sends the message and blocks until the reply arrives or ctx ends.
// Without a deadline on ctx the connection's call timeout applies.
//
// A nil error means a normal reply. A *RemoteError means the peer answered
// with an error; the Call then reads over the error's arguments. Timeouts
// wrap ErrTimeout and a degraded connection yields ErrUnavailable.
func (c *Call) Call(ctx context.Context) error {
	if c.done {
		return ErrCallDone
	}
	c.done = true
	params := c.params
	c.params = nil

	t, err := c.conn.usable()
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok && c.conn.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.conn.callTimeout)
		defer cancel()
	}

	fields := logrus.Fields{"service": c.service, "path": c.path, "method": c.iface + "." + c.method}
	body, err := t.Call(ctx, c.service, dbus.ObjectPath(c.path), c.iface, c.method, params...)
	if err == nil {
		c.Message = *newMessage(ArgsOf(body), c.log)
		return nil
	}

	if remote, ok := asRemote(err); ok {
		c.Message = *newMessage(ArgsOf(remote.Body), c.log)
		probe := *newMessage(c.args, c.log)
		rerr := &RemoteError{Name: remote.Name, Message: probe.ReadString()}
		c.log.WithFields(fields).WithField("error", rerr.Name).Warnf("bus: error on call: %s", rerr.Message)
		return rerr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.log.WithFields(fields).Warn("bus: call timed out")
		return fmt.Errorf("%w: %s.%s: %v", ErrTimeout, c.iface, c.method, err)
	}
	c.log.WithFields(fields).WithError(err).Warn("bus: call failed")
	return fmt.Errorf("bus: call %s.%s: %w", c.iface, c.method, err)
}

func asRemote(err error) (dbus.Error, bool) {
	var e dbus.Error
	if errors.As(err, &e) {
		return e, true
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return *pe, true
	}
	return dbus.Error{}, false
}
