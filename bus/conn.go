// Package bus is a small client for the system message bus: one shared
// connection, proxies for remote objects, blocking method calls and
// polled signal dispatch.
//
// Usage: open a Conn, create a Proxy on it, build a Call from the proxy,
// append parameters, Call it and read the reply through the Message
// methods. Signals attached to a Proxy are delivered when the host calls
// Conn.Pump.
package bus

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// DefaultCallTimeout bounds a Call whose context carries no deadline.
const DefaultCallTimeout = 25 * time.Second

// Options configures a Conn.
type Options struct {
	// Address overrides the system bus address.
	Address string
	// CallTimeout applies when a Call context has no deadline. Zero means
	// DefaultCallTimeout, negative disables it.
	CallTimeout time.Duration
	// SignalBuffer is how many inbound signals may queue between pumps.
	SignalBuffer int
	Logger       logrus.FieldLogger
}

// Conn owns one broker session and the registry of live proxies.
//
// A Conn whose transport could not be acquired stays degraded for its whole
// lifetime: Connected reports false and every transport operation returns
// ErrUnavailable. It is never redialed.
type Conn struct {
	mu          sync.Mutex
	transport   Transport
	err         error
	closed      bool
	proxies     []*Proxy
	callTimeout time.Duration
	log         logrus.FieldLogger
}

var (
	defaultOnce sync.Once
	defaultConn *Conn
)

// Default returns the process-wide connection to the system bus, opening it
// on first use. A failed open is not retried; check Connected.
func Default() *Conn {
	defaultOnce.Do(func() {
		defaultConn, _ = Open(Options{})
	})
	return defaultConn
}

// Open dials the system bus. It always returns a usable *Conn; when the
// transport cannot be acquired the Conn is degraded and the error wraps
// ErrUnavailable.
func Open(opts Options) (*Conn, error) {
	addr := SystemBusAddress(opts.Address)
	t, err := DialTransport(addr, opts.SignalBuffer)
	c := NewConn(t, opts)
	if err != nil {
		c.err = err
		c.log.WithError(err).WithField("address", addr).Error("bus: connection error")
		return c, err
	}
	c.log.WithField("address", addr).Debug("bus: connected")
	return c, nil
}

// NewConn wraps an established transport. A nil transport yields a degraded
// Conn.
func NewConn(t Transport, opts Options) *Conn {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	c := &Conn{
		transport:   t,
		callTimeout: timeout,
		log:         log,
	}
	if t == nil {
		c.err = ErrUnavailable
	}
	return c
}

// Connected reports whether the transport was acquired, has not been closed
// and has not dropped its signal stream.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && !c.closed && c.err == nil
}

// Err returns why the Conn is unusable, or nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.closed {
		return ErrUnavailable
	}
	return nil
}

func (c *Conn) usable() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.transport == nil || c.closed {
		return nil, ErrUnavailable
	}
	return c.transport, nil
}

// Close releases the transport. Proxies created on c stay valid objects but
// every operation on them fails afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed || c.transport == nil {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	t := c.transport
	c.mu.Unlock()
	return t.Close()
}

func (c *Conn) register(p *Proxy) {
	c.mu.Lock()
	c.proxies = append(c.proxies, p)
	c.mu.Unlock()
}

func (c *Conn) unregister(p *Proxy) {
	c.mu.Lock()
	if i := slices.Index(c.proxies, p); i >= 0 {
		c.proxies = slices.Delete(c.proxies, i, i+1)
	}
	c.mu.Unlock()
}

// Pump drains every signal currently buffered by the transport without
// blocking and delivers each to the matching proxy callbacks, in proxy
// registration order. It returns the number of callbacks invoked.
//
// Callbacks may close proxies or detach signals; those take effect for the
// remainder of the dispatch.
func (c *Conn) Pump() int {
	t, err := c.usable()
	if err != nil {
		return 0
	}
	ch := t.Signals()
	n := 0
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				c.lost()
				return n
			}
			if sig == nil {
				continue
			}
			n += c.dispatch(sig)
		default:
			return n
		}
	}
}

// lost marks the Conn degraded after the transport closed its signal stream.
func (c *Conn) lost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && !c.closed {
		c.err = fmt.Errorf("%w: signal stream closed", ErrUnavailable)
		c.log.WithError(c.err).Error("bus: connection lost")
	}
}

func (c *Conn) dispatch(sig *dbus.Signal) int {
	iface, member := splitMember(sig.Name)
	path := string(sig.Path)

	c.mu.Lock()
	proxies := slices.Clone(c.proxies)
	c.mu.Unlock()

	var args []Arg
	n := 0
	for _, p := range proxies {
		if p.path != path || p.iface != iface {
			continue
		}
		fn := p.callback(member)
		if fn == nil {
			continue
		}
		if args == nil {
			args = ArgsOf(sig.Body)
		}
		fn(newMessage(args, c.log))
		n++
	}
	if n == 0 {
		c.log.WithFields(logrus.Fields{"path": path, "interface": iface, "member": member}).
			Trace("bus: signal without subscriber")
	}
	return n
}

// splitMember splits "iface.Member" at the last dot.
func splitMember(name string) (iface, member string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
