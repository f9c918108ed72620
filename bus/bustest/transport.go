// Package bustest provides an in-memory bus transport for tests.
package bustest

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

// HandlerFunc answers one method call. Returning a dbus.Error simulates an
// error reply.
type HandlerFunc func(ctx context.Context, args []any) ([]any, error)

// Invocation records one method call seen by the transport.
type Invocation struct {
	Dest      string
	Path      dbus.ObjectPath
	Interface string
	Method    string
	Args      []any
}

// Transport is a scripted broker. Method calls are answered by registered
// handlers; signals are queued with Emit and drained by Conn.Pump.
type Transport struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Invocation
	matches  []string
	signals  chan *dbus.Signal
	closed   bool

	// MatchErr, when set, fails AddMatch.
	MatchErr error
}

// New returns a transport with room for buffer queued signals.
func New(buffer int) *Transport {
	if buffer <= 0 {
		buffer = 64
	}
	return &Transport{
		handlers: make(map[string]HandlerFunc),
		signals:  make(chan *dbus.Signal, buffer),
	}
}

// Handle answers iface.method with fn.
func (t *Transport) Handle(iface, method string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[iface+"."+method] = fn
}

// Reply answers iface.method with a fixed body.
func (t *Transport) Reply(iface, method string, body ...any) {
	t.Handle(iface, method, func(context.Context, []any) ([]any, error) {
		return body, nil
	})
}

// Fail answers iface.method with an error reply.
func (t *Transport) Fail(iface, method, name string, body ...any) {
	t.Handle(iface, method, func(context.Context, []any) ([]any, error) {
		return nil, dbus.Error{Name: name, Body: body}
	})
}

// Emit queues a signal as the broker would forward it.
func (t *Transport) Emit(sender, path, iface, member string, body ...any) {
	t.signals <- &dbus.Signal{
		Sender: sender,
		Path:   dbus.ObjectPath(path),
		Name:   iface + "." + member,
		Body:   body,
	}
}

// Disconnect closes the signal stream the way a dropped broker connection
// does. Emit must not be called afterwards.
func (t *Transport) Disconnect() {
	close(t.signals)
}

func (t *Transport) Call(ctx context.Context, dest string, path dbus.ObjectPath, iface, method string, args ...any) ([]any, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("bustest: transport closed")
	}
	t.calls = append(t.calls, Invocation{Dest: dest, Path: path, Interface: iface, Method: method, Args: args})
	fn, ok := t.handlers[iface+"."+method]
	t.mu.Unlock()
	if !ok {
		return nil, dbus.Error{
			Name: "org.freedesktop.DBus.Error.UnknownMethod",
			Body: []any{"no handler for " + iface + "." + method},
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx, args)
}

func (t *Transport) AddMatch(rule string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.MatchErr != nil {
		return t.MatchErr
	}
	t.matches = append(t.matches, rule)
	return nil
}

func (t *Transport) RemoveMatch(rule string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.matches {
		if r == rule {
			t.matches = append(t.matches[:i], t.matches[i+1:]...)
			return nil
		}
	}
	return dbus.Error{Name: "org.freedesktop.DBus.Error.MatchRuleNotFound"}
}

func (t *Transport) Signals() <-chan *dbus.Signal {
	return t.signals
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Calls returns the recorded method calls.
func (t *Transport) Calls() []Invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Invocation(nil), t.calls...)
}

// Matches returns the currently registered match rules.
func (t *Transport) Matches() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.matches...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
