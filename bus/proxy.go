package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SignalFunc receives one signal. The Message is positioned at the first
// signal argument and is not shared with other callbacks.
type SignalFunc func(*Message)

type handler struct {
	fn   SignalFunc
	rule string
}

// Proxy stands in for one remote object, identified by service name, object
// path and interface. The identity never changes.
type Proxy struct {
	conn    *Conn
	service string
	path    string
	iface   string

	mu       sync.Mutex
	handlers map[string]*handler
	closed   bool
}

// NewProxy creates a proxy and registers it for signal dispatch.
func (c *Conn) NewProxy(service, path, iface string) *Proxy {
	p := &Proxy{
		conn:     c,
		service:  service,
		path:     path,
		iface:    iface,
		handlers: make(map[string]*handler),
	}
	c.register(p)
	return p
}

func (p *Proxy) Service() string   { return p.service }
func (p *Proxy) Path() string      { return p.path }
func (p *Proxy) Interface() string { return p.iface }

// MatchRule renders the broker filter for one signal. The spacing is kept
// as deployed services expect it.
func MatchRule(service, iface, member, path string) string {
	return fmt.Sprintf("type='signal',sender='%s', interface='%s',member='%s', path='%s'", service, iface, member, path)
}

// CreateCall starts a method call on this proxy's object.
func (p *Proxy) CreateCall(method string) *Call {
	return newCall(p, method)
}

// Subscription is the handle returned by AttachSignal.
type Subscription struct {
	proxy *Proxy
	name  string
	h     *handler
}

func (s *Subscription) Name() string { return s.name }

// Detach removes the callback if it is still the one attached under the
// subscription's name.
func (s *Subscription) Detach() error {
	return s.proxy.detach(s.name, s.h)
}

// AttachSignal registers a match rule for the named signal and stores fn.
// Attaching a name again replaces the previous callback and keeps the
// existing rule.
func (p *Proxy) AttachSignal(name string, fn SignalFunc) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("bus: nil signal callback")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if old, ok := p.handlers[name]; ok {
		h := &handler{fn: fn, rule: old.rule}
		p.handlers[name] = h
		return &Subscription{proxy: p, name: name, h: h}, nil
	}

	rule := MatchRule(p.service, p.iface, name, p.path)
	t, err := p.conn.usable()
	if err != nil {
		return nil, err
	}
	if err := t.AddMatch(rule); err != nil {
		p.conn.log.WithError(err).WithField("rule", rule).Warn("bus: add match failed")
		return nil, fmt.Errorf("bus: add match %q: %w", rule, err)
	}
	h := &handler{fn: fn, rule: rule}
	p.handlers[name] = h
	return &Subscription{proxy: p, name: name, h: h}, nil
}

// DetachSignal removes the named callback and its match rule.
func (p *Proxy) DetachSignal(name string) error {
	return p.detach(name, nil)
}

func (p *Proxy) detach(name string, want *handler) error {
	p.mu.Lock()
	h, ok := p.handlers[name]
	if !ok || (want != nil && h != want) {
		p.mu.Unlock()
		return ErrNotAttached
	}
	delete(p.handlers, name)
	p.mu.Unlock()
	return p.removeMatch(h.rule)
}

func (p *Proxy) removeMatch(rule string) error {
	t, err := p.conn.usable()
	if err != nil {
		return err
	}
	if err := t.RemoveMatch(rule); err != nil {
		return fmt.Errorf("bus: remove match %q: %w", rule, err)
	}
	return nil
}

// callback returns the live callback for member, nil once detached or closed.
func (p *Proxy) callback(member string) SignalFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if h, ok := p.handlers[member]; ok {
		return h.fn
	}
	return nil
}

// Close unregisters the proxy and drops its match rules. Calls already
// created from it remain usable.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	handlers := p.handlers
	p.handlers = make(map[string]*handler)
	p.mu.Unlock()

	p.conn.unregister(p)
	if !p.conn.Connected() {
		return nil
	}
	var errs []error
	for name, h := range handlers {
		if err := p.removeMatch(h.rule); err != nil {
			p.conn.log.WithError(err).WithFields(logrus.Fields{"signal": name}).Debug("bus: remove match failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
