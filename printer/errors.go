package printer

import (
	"context"
	"fmt"
	"strconv"

	"printerbus/bus"
)

// ErrorLevel is the severity carried by error notifications, syslog style.
type ErrorLevel int

const (
	Emergency ErrorLevel = 0
	Alert     ErrorLevel = 1
	Critical  ErrorLevel = 2
	Error     ErrorLevel = 3
	Warning   ErrorLevel = 4
	Notice    ErrorLevel = 5
	Info      ErrorLevel = 6
	Debug     ErrorLevel = 7
	NoError   ErrorLevel = 255
)

var levelNames = map[ErrorLevel]string{
	Emergency: "EMERGENCY",
	Alert:     "ALERT",
	Critical:  "CRITICAL",
	Error:     "ERROR",
	Warning:   "WARNING",
	Notice:    "NOTICE",
	Info:      "INFO",
	Debug:     "DEBUG",
	NoError:   "NO_ERROR",
}

func (l ErrorLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "ErrorLevel(" + strconv.Itoa(int(l)) + ")"
}

// levelOf maps a wire level to a known ErrorLevel; anything else is NoError.
func levelOf(n int) ErrorLevel {
	if n >= int(Emergency) && n <= int(Debug) {
		return ErrorLevel(n)
	}
	return NoError
}

// OnError subscribes fn to error notifications and immediately delivers
// the printer's current error state through it.
func (c *Client) OnError(ctx context.Context, fn ErrorFunc) error {
	decode := func(m *bus.Message) {
		level := levelOf(m.ReadInt())
		code := m.ReadInt()
		message := m.ReadString()
		fn(level, code, message)
	}
	if _, err := c.proxy.AttachSignal(signalError, decode); err != nil {
		return fmt.Errorf("printer: subscribe %s: %w", signalError, err)
	}

	call := c.proxy.CreateCall("getError")
	if err := call.Call(ctx); err != nil {
		return fmt.Errorf("printer: current error: %w", err)
	}
	decode(&call.Message)
	return nil
}
