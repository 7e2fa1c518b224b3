// Package bus carries messages between the workers of the agent and the
// controller. Every bus has exactly one consumer and any number of senders.
package bus

import (
	"fmt"
	"log/slog"

	"liebert/internal/metrics"
)

// Message is the closed set of values that travel on a bus. Messages are
// never mutated after construction; Clone is used for fan-out.
type Message interface {
	Clone() Message
	message()
}

// Data is one sample of a metric. Host is empty on the agent side.
type Data struct {
	Host      string
	Metric    string
	Timestamp int64
	Values    []int64
}

// Format announces the schema of a metric.
type Format struct {
	Host   string
	Metric string
	Schema metrics.Schema
}

// Shutdown asks the consumer to stop.
type Shutdown struct {
	Reason string
}

// Fatal reports a condition that must abort the process.
type Fatal struct {
	Reason string
}

// Log asks the owning control loop to emit a log line.
type Log struct {
	Level slog.Level
	Text  string
}

func (d Data) Clone() Message {
	d.Values = append([]int64(nil), d.Values...)
	return d
}

func (f Format) Clone() Message {
	f.Schema = f.Schema.Clone()
	return f
}

func (s Shutdown) Clone() Message { return s }
func (f Fatal) Clone() Message    { return f }
func (l Log) Clone() Message      { return l }

func (Data) message()     {}
func (Format) message()   {}
func (Shutdown) message() {}
func (Fatal) message()    {}
func (Log) message()      {}

func LogDebug(format string, args ...any) Log {
	return Log{Level: slog.LevelDebug, Text: fmt.Sprintf(format, args...)}
}

func LogInfo(format string, args ...any) Log {
	return Log{Level: slog.LevelInfo, Text: fmt.Sprintf(format, args...)}
}

func LogWarn(format string, args ...any) Log {
	return Log{Level: slog.LevelWarn, Text: fmt.Sprintf(format, args...)}
}

func LogError(format string, args ...any) Log {
	return Log{Level: slog.LevelError, Text: fmt.Sprintf(format, args...)}
}

// Topic returns the routing key of a Data or Format message.
func Topic(m Message) (string, bool) {
	switch v := m.(type) {
	case Data:
		return v.Metric, true
	case Format:
		return v.Metric, true
	default:
		return "", false
	}
}

// WithHost returns a copy of a Data or Format message tagged with host.
// Other messages are returned unchanged.
func WithHost(m Message, host string) Message {
	switch v := m.(type) {
	case Data:
		v.Host = host
		return v
	case Format:
		v.Host = host
		return v
	default:
		return m
	}
}
