package bus

import (
	"errors"
	"testing"

	"printerbus/bus/bustest"
)

func newTestConn(t *testing.T) (*Conn, *bustest.Transport) {
	t.Helper()
	tr := bustest.New(16)
	c := NewConn(tr, Options{Logger: quietLogger()})
	t.Cleanup(func() { c.Close() })
	return c, tr
}

func TestSignalEndToEnd(t *testing.T) {
	c, tr := newTestConn(t)
	p := c.NewProxy("svc", "/obj", "iface.name")

	calls := 0
	got := 0
	if _, err := p.AttachSignal("changed", func(m *Message) {
		calls++
		got = m.ReadInt()
	}); err != nil {
		t.Fatalf("AttachSignal: %v", err)
	}

	tr.Emit("svc", "/obj", "iface.name", "changed", int32(42))
	if n := c.Pump(); n != 1 {
		t.Fatalf("Pump = %d, want 1", n)
	}
	if calls != 1 || got != 42 {
		t.Fatalf("callback calls=%d value=%d, want 1/42", calls, got)
	}
	if n := c.Pump(); n != 0 {
		t.Fatalf("second Pump = %d, want 0", n)
	}
}

func TestSignalRouting(t *testing.T) {
	c, tr := newTestConn(t)
	p := c.NewProxy("svc", "/p", "i")
	other := c.NewProxy("svc", "/q", "i")

	var hits, otherHits int
	p.AttachSignal("m", func(*Message) { hits++ })
	other.AttachSignal("m", func(*Message) { otherHits++ })

	tr.Emit("svc", "/p", "i", "m")
	tr.Emit("svc", "/elsewhere", "i", "m")
	tr.Emit("svc", "/p", "j", "m")
	tr.Emit("svc", "/p", "i", "other")
	c.Pump()
	if hits != 1 || otherHits != 0 {
		t.Fatalf("hits=%d otherHits=%d, want 1/0", hits, otherHits)
	}

	if err := p.DetachSignal("m"); err != nil {
		t.Fatalf("DetachSignal: %v", err)
	}
	tr.Emit("svc", "/p", "i", "m")
	if n := c.Pump(); n != 0 || hits != 1 {
		t.Fatalf("after detach Pump=%d hits=%d", n, hits)
	}
}

func TestSignalDispatchOrderAndFreshMessages(t *testing.T) {
	c, tr := newTestConn(t)
	a := c.NewProxy("svc", "/p", "i")
	b := c.NewProxy("other", "/p", "i")

	var order []string
	a.AttachSignal("m", func(m *Message) { order = append(order, "a:"+m.ReadString()) })
	b.AttachSignal("m", func(m *Message) { order = append(order, "b:"+m.ReadString()) })

	tr.Emit("svc", "/p", "i", "m", "x")
	c.Pump()
	if len(order) != 2 || order[0] != "a:x" || order[1] != "b:x" {
		t.Fatalf("order = %v", order)
	}
}

func TestAttachSignalMatchRule(t *testing.T) {
	c, tr := newTestConn(t)
	p := c.NewProxy("nl.ultimaker.printer", "/nl/ultimaker/printer", "nl.ultimaker")

	first := 0
	second := 0
	sub, err := p.AttachSignal("onError", func(*Message) { first++ })
	if err != nil {
		t.Fatalf("AttachSignal: %v", err)
	}
	want := "type='signal',sender='nl.ultimaker.printer', interface='nl.ultimaker',member='onError', path='/nl/ultimaker/printer'"
	if m := tr.Matches(); len(m) != 1 || m[0] != want {
		t.Fatalf("matches = %q", m)
	}

	if _, err := p.AttachSignal("onError", func(*Message) { second++ }); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if m := tr.Matches(); len(m) != 1 {
		t.Fatalf("re-attach registered another rule: %q", m)
	}

	tr.Emit("nl.ultimaker.printer", "/nl/ultimaker/printer", "nl.ultimaker", "onError")
	c.Pump()
	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want replacement", first, second)
	}

	if err := sub.Detach(); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("stale subscription Detach = %v, want ErrNotAttached", err)
	}
	if err := p.DetachSignal("onError"); err != nil {
		t.Fatalf("DetachSignal: %v", err)
	}
	if m := tr.Matches(); len(m) != 0 {
		t.Fatalf("rule left after detach: %q", m)
	}
	if err := p.DetachSignal("onError"); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("second DetachSignal = %v", err)
	}
}

func TestAttachSignalReportsMatchFailure(t *testing.T) {
	c, tr := newTestConn(t)
	tr.MatchErr = errors.New("access denied")
	p := c.NewProxy("svc", "/p", "i")

	if _, err := p.AttachSignal("m", func(*Message) {}); err == nil {
		t.Fatalf("AttachSignal succeeded despite match failure")
	}
	tr.Emit("svc", "/p", "i", "m")
	if n := c.Pump(); n != 0 {
		t.Fatalf("callback stored despite failed registration")
	}
}

func TestDetachInsideCallback(t *testing.T) {
	c, tr := newTestConn(t)
	p := c.NewProxy("svc", "/p", "i")
	q := c.NewProxy("svc", "/p", "i")

	qHits := 0
	p.AttachSignal("m", func(*Message) {
		q.DetachSignal("m")
		p.Close()
	})
	q.AttachSignal("m", func(*Message) { qHits++ })

	tr.Emit("svc", "/p", "i", "m")
	tr.Emit("svc", "/p", "i", "m")
	if n := c.Pump(); n != 1 {
		t.Fatalf("Pump = %d, want 1", n)
	}
	if qHits != 0 {
		t.Fatalf("detached callback invoked %d times", qHits)
	}
}

func TestProxyCloseUnregisters(t *testing.T) {
	c, tr := newTestConn(t)
	p := c.NewProxy("svc", "/p", "i")
	hits := 0
	p.AttachSignal("m", func(*Message) { hits++ })
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m := tr.Matches(); len(m) != 0 {
		t.Fatalf("rules left after Close: %q", m)
	}
	tr.Emit("svc", "/p", "i", "m")
	c.Pump()
	if hits != 0 {
		t.Fatalf("closed proxy received signal")
	}
	if _, err := p.AttachSignal("m", func(*Message) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("AttachSignal on closed proxy = %v", err)
	}
}

func TestDegradedConn(t *testing.T) {
	c := NewConn(nil, Options{Logger: quietLogger()})
	if c.Connected() {
		t.Fatalf("degraded conn reports connected")
	}
	if !errors.Is(c.Err(), ErrUnavailable) {
		t.Fatalf("Err = %v", c.Err())
	}
	if n := c.Pump(); n != 0 {
		t.Fatalf("Pump on degraded conn = %d", n)
	}
	p := c.NewProxy("svc", "/p", "i")
	if _, err := p.AttachSignal("m", func(*Message) {}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("AttachSignal = %v, want ErrUnavailable", err)
	}
	call := p.CreateCall("get")
	if err := call.Call(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Call = %v, want ErrUnavailable", err)
	}
	if call.ReadInt() != -1 {
		t.Fatalf("failed call should read as exhausted")
	}
}

func TestLostSignalStreamDegrades(t *testing.T) {
	c, tr := newTestConn(t)
	hits := 0
	c.NewProxy("svc", "/p", "i").AttachSignal("m", func(*Message) { hits++ })

	tr.Emit("svc", "/p", "i", "m")
	tr.Disconnect()
	if n := c.Pump(); n != 1 || hits != 1 {
		t.Fatalf("queued signal not delivered before loss: n=%d hits=%d", n, hits)
	}
	if c.Connected() || !errors.Is(c.Err(), ErrUnavailable) {
		t.Fatalf("conn not degraded: connected=%v err=%v", c.Connected(), c.Err())
	}
	if err := c.NewProxy("svc", "/p", "i").CreateCall("x").Call(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Call after loss = %v", err)
	}
}

func TestOpenUnreachableBusIsDegraded(t *testing.T) {
	c, err := Open(Options{Address: "unix:path=" + t.TempDir() + "/missing.sock", Logger: quietLogger()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Open error = %v, want ErrUnavailable", err)
	}
	if c == nil || c.Connected() {
		t.Fatalf("Open should return a degraded conn")
	}
}

func TestCloseReleasesTransport(t *testing.T) {
	c, tr := newTestConn(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !tr.Closed() || c.Connected() {
		t.Fatalf("transport not released")
	}
	if err := c.NewProxy("svc", "/p", "i").CreateCall("x").Call(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Call after Close = %v", err)
	}
}

func TestSystemBusAddress(t *testing.T) {
	t.Setenv(systemBusAddressEnv, "")
	if got := SystemBusAddress(""); got != DefaultSystemBusAddress {
		t.Fatalf("default address = %q", got)
	}
	t.Setenv(systemBusAddressEnv, "unix:path=/run/custom")
	if got := SystemBusAddress(""); got != "unix:path=/run/custom" {
		t.Fatalf("env address = %q", got)
	}
	if got := SystemBusAddress(" unix:path=/x "); got != "unix:path=/x" {
		t.Fatalf("explicit address = %q", got)
	}
}
