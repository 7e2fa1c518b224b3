// Package protocol implements the newline-delimited text protocol spoken
// between agents and the controller.
//
//	DATA <metric> <timestamp> <value> [<value> ...]
//	FORMAT <metric>
//	<kind-id> <series> <heartbeat> <min|U> <max|U>
//	FORMAT_END
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"liebert/internal/bus"
	"liebert/internal/metrics"
)

const (
	cmdData      = "DATA"
	cmdFormat    = "FORMAT"
	cmdFormatEnd = "FORMAT_END"
)

// Encoder writes messages to a stream, flushing after each one.
type Encoder struct {
	w   *bufio.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes a Data or Format message.
func (e *Encoder) Encode(m bus.Message) error {
	var err error
	e.buf, err = Append(e.buf[:0], m)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(e.buf); err != nil {
		return err
	}
	return e.w.Flush()
}

// Append appends the wire form of a Data or Format message to buf.
func Append(buf []byte, m bus.Message) ([]byte, error) {
	switch v := m.(type) {
	case bus.Data:
		return AppendData(buf, v.Metric, v.Timestamp, v.Values)
	case bus.Format:
		return AppendFormat(buf, v.Metric, v.Schema)
	default:
		return buf, fmt.Errorf("cannot encode %T", m)
	}
}

// AppendData appends a DATA line.
func AppendData(buf []byte, metric string, ts int64, values []int64) ([]byte, error) {
	if err := checkToken(metric); err != nil {
		return buf, err
	}
	if len(values) == 0 {
		return buf, fmt.Errorf("metric %s: sample has no values", metric)
	}

	buf = append(buf, cmdData...)
	buf = append(buf, ' ')
	buf = append(buf, metric...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, ts, 10)
	for _, v := range values {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, v, 10)
	}
	return append(buf, '\n'), nil
}

// AppendFormat appends a FORMAT block.
func AppendFormat(buf []byte, metric string, schema metrics.Schema) ([]byte, error) {
	if err := checkToken(metric); err != nil {
		return buf, err
	}

	buf = append(buf, cmdFormat...)
	buf = append(buf, ' ')
	buf = append(buf, metric...)
	buf = append(buf, '\n')
	for _, s := range schema {
		if err := checkToken(s.Name); err != nil {
			return buf, fmt.Errorf("metric %s: %w", metric, err)
		}
		buf = strconv.AppendInt(buf, int64(s.Kind), 10)
		buf = append(buf, ' ')
		buf = append(buf, s.Name...)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, s.Heartbeat, 10)
		buf = append(buf, ' ')
		buf = append(buf, s.Min.String()...)
		buf = append(buf, ' ')
		buf = append(buf, s.Max.String()...)
		buf = append(buf, '\n')
	}
	buf = append(buf, cmdFormatEnd...)
	return append(buf, '\n'), nil
}

// checkToken rejects names that would split into several tokens on the wire.
func checkToken(s string) error {
	if s == "" {
		return fmt.Errorf("empty name")
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return fmt.Errorf("name %q contains whitespace", s)
		}
	}
	return nil
}
