// Package printer is a client for the printer service on the system bus.
//
// It starts and messages procedures, caches procedure metadata, tracks the
// active procedures from lifecycle signals and relays error notifications.
// Everything goes through bus.Proxy calls and signals; signal callbacks run
// from Conn.Pump on the caller's goroutine.
package printer

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"printerbus/bus"
)

const (
	DefaultService     = "nl.ultimaker.printer"
	DefaultPath        = "/nl/ultimaker/printer"
	DefaultInterface   = "nl.ultimaker"
	DefaultMetadataTTL = 500 * time.Millisecond
)

const (
	signalStart    = "onProcedureStart"
	signalNextStep = "onProcedureNextStep"
	signalFinished = "onProcedureFinished"
	signalError    = "onError"
)

type (
	StepFunc     func(step string)
	FinishedFunc func()
	ErrorFunc    func(level ErrorLevel, code int, message string)
)

// Options configures a Client. Zero fields take the defaults.
type Options struct {
	Service     string
	Path        string
	Interface   string
	MetadataTTL time.Duration
	Logger      logrus.FieldLogger
}

type metadataEntry struct {
	values  map[string]bus.Variant
	fetched time.Time
}

// Client wraps the printer service object.
type Client struct {
	proxy *bus.Proxy
	ttl   time.Duration
	log   logrus.FieldLogger
	now   func() time.Time

	mu         sync.Mutex
	metadata   map[string]metadataEntry
	active     map[string][]string
	onStart    map[string][]StepFunc
	onNextStep map[string][]StepFunc
	onFinished map[string][]FinishedFunc
}

// New creates the client and subscribes to the procedure lifecycle signals.
func New(conn *bus.Conn, opts Options) (*Client, error) {
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Interface == "" {
		opts.Interface = DefaultInterface
	}
	if opts.MetadataTTL == 0 {
		opts.MetadataTTL = DefaultMetadataTTL
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	c := &Client{
		proxy:      conn.NewProxy(opts.Service, opts.Path, opts.Interface),
		ttl:        opts.MetadataTTL,
		log:        opts.Logger.WithField("service", opts.Service),
		now:        time.Now,
		metadata:   make(map[string]metadataEntry),
		active:     make(map[string][]string),
		onStart:    make(map[string][]StepFunc),
		onNextStep: make(map[string][]StepFunc),
		onFinished: make(map[string][]FinishedFunc),
	}

	subs := []struct {
		name string
		fn   bus.SignalFunc
	}{
		{signalStart, c.handleStart},
		{signalNextStep, c.handleNextStep},
		{signalFinished, c.handleFinished},
	}
	for _, s := range subs {
		if _, err := c.proxy.AttachSignal(s.name, s.fn); err != nil {
			c.proxy.Close()
			return nil, fmt.Errorf("printer: subscribe %s: %w", s.name, err)
		}
	}
	return c, nil
}

// Close releases the proxy and its signal subscriptions.
func (c *Client) Close() error {
	return c.proxy.Close()
}

// StartProcedure starts the named procedure with optional string parameters.
func (c *Client) StartProcedure(ctx context.Context, key string, params map[string]string) (bool, error) {
	if params == nil {
		params = map[string]string{}
	}
	call := c.proxy.CreateCall("startProcedure").ParamString(key).ParamDict(params)
	if err := call.Call(ctx); err != nil {
		return false, fmt.Errorf("printer: start procedure %s: %w", key, err)
	}
	return call.ReadBoolean(), nil
}

// MessageProcedure sends message to a running procedure, e.g. ABORT to PRINT.
func (c *Client) MessageProcedure(ctx context.Context, key, message string) (bool, error) {
	call := c.proxy.CreateCall("messageProcedure").ParamString(key).ParamString(message)
	if err := call.Call(ctx); err != nil {
		return false, fmt.Errorf("printer: message procedure %s: %w", key, err)
	}
	return call.ReadBoolean(), nil
}

// MetaData returns the procedure's metadata, served from cache when it is
// younger than the client's metadata TTL.
func (c *Client) MetaData(ctx context.Context, key string) (map[string]bus.Variant, error) {
	return c.MetaDataWithin(ctx, key, c.ttl)
}

// MetaDataWithin is MetaData with an explicit maximum cache age. A maxAge of
// zero or less always refetches.
func (c *Client) MetaDataWithin(ctx context.Context, key string, maxAge time.Duration) (map[string]bus.Variant, error) {
	c.mu.Lock()
	entry, ok := c.metadata[key]
	c.mu.Unlock()
	if ok && maxAge > 0 && c.now().Sub(entry.fetched) < maxAge {
		return maps.Clone(entry.values), nil
	}

	call := c.proxy.CreateCall("getProcedureMetaData").ParamString(key)
	if err := call.Call(ctx); err != nil {
		return nil, fmt.Errorf("printer: metadata %s: %w", key, err)
	}
	values := call.ReadStringVariantDictionary()

	c.mu.Lock()
	c.metadata[key] = metadataEntry{values: values, fetched: c.now()}
	c.mu.Unlock()
	return maps.Clone(values), nil
}

// OnStart registers fn for when procedure key starts.
func (c *Client) OnStart(key string, fn StepFunc) {
	c.mu.Lock()
	c.onStart[key] = append(c.onStart[key], fn)
	c.mu.Unlock()
}

// OnNextStep registers fn for when procedure key advances a step.
func (c *Client) OnNextStep(key string, fn StepFunc) {
	c.mu.Lock()
	c.onNextStep[key] = append(c.onNextStep[key], fn)
	c.mu.Unlock()
}

// OnFinished registers fn for when procedure key finishes.
func (c *Client) OnFinished(key string, fn FinishedFunc) {
	c.mu.Lock()
	c.onFinished[key] = append(c.onFinished[key], fn)
	c.mu.Unlock()
}

// ActiveProcedures returns the known running procedures and the steps seen
// for each.
func (c *Client) ActiveProcedures() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string, len(c.active))
	for k, steps := range c.active {
		out[k] = slices.Clone(steps)
	}
	return out
}

// UpdateInitialActiveProcedures reads the procedures already running on the
// printer and fires start and step callbacks for any not yet known. Call it
// once at startup so listeners begin from a consistent state.
func (c *Client) UpdateInitialActiveProcedures(ctx context.Context) error {
	call := c.proxy.CreateCall("getActiveProcedures")
	if err := call.Call(ctx); err != nil {
		return fmt.Errorf("printer: active procedures: %w", err)
	}
	list := call.ReadArray()
	for entry := list.ReadStruct(); entry != nil; entry = list.ReadStruct() {
		key := entry.ReadString()
		step := entry.ReadString()

		c.mu.Lock()
		if _, known := c.active[key]; known {
			c.mu.Unlock()
			continue
		}
		c.active[key] = []string{step}
		starts := slices.Clone(c.onStart[key])
		steps := slices.Clone(c.onNextStep[key])
		c.mu.Unlock()

		for _, fn := range starts {
			fn(step)
		}
		for _, fn := range steps {
			fn(step)
		}
	}
	return nil
}

func (c *Client) handleStart(m *bus.Message) {
	key := m.ReadString()
	step := m.ReadString()
	c.log.WithFields(logrus.Fields{"procedure": key, "step": step}).Debug("procedure started")

	c.mu.Lock()
	c.active[key] = []string{step}
	fns := slices.Clone(c.onStart[key])
	c.mu.Unlock()
	for _, fn := range fns {
		fn(step)
	}
}

func (c *Client) handleNextStep(m *bus.Message) {
	key := m.ReadString()
	step := m.ReadString()
	c.log.WithFields(logrus.Fields{"procedure": key, "step": step}).Debug("procedure step")

	c.mu.Lock()
	c.active[key] = append(c.active[key], step)
	fns := slices.Clone(c.onNextStep[key])
	c.mu.Unlock()
	for _, fn := range fns {
		fn(step)
	}
}

func (c *Client) handleFinished(m *bus.Message) {
	key := m.ReadString()
	c.log.WithField("procedure", key).Debug("procedure finished")

	c.mu.Lock()
	delete(c.active, key)
	fns := slices.Clone(c.onFinished[key])
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
