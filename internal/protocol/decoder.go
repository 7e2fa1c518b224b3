package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"liebert/internal/bus"
	liberrors "liebert/internal/errors"
	"liebert/internal/metrics"
)

// MaxLineLength is the longest line a reader accepts. A longer line is a
// decode error for its connection.
const MaxLineLength = 64 * 1024

// State is the decoder's position in the stream.
type State int

const (
	// StateNormal expects DATA or FORMAT lines.
	StateNormal State = iota
	// StateFormat accumulates series lines until FORMAT_END.
	StateFormat
)

func (s State) String() string {
	if s == StateFormat {
		return "processing_format"
	}
	return "normal"
}

// Decoder turns lines from one connection into messages. It is not safe for
// concurrent use; each connection owns its own.
type Decoder struct {
	state  State
	metric string
	schema metrics.Schema
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) State() State { return d.state }

// Decode consumes one line. It returns a message when the line completes one,
// and nil for lines that only advance the state, blank lines and unknown
// commands. After an error the decoder is back in StateNormal, but the stream
// should be considered lost.
func (d *Decoder) Decode(line string) (bus.Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	if d.state == StateFormat {
		return d.decodeSeries(line, fields)
	}

	switch fields[0] {
	case cmdData:
		return decodeData(line, fields[1:])
	case cmdFormat:
		if len(fields) < 2 {
			return nil, liberrors.ProtocolError("FORMAT without metric name", line)
		}
		d.state = StateFormat
		d.metric = fields[len(fields)-1]
		d.schema = nil
		return nil, nil
	default:
		return nil, nil
	}
}

// Abandon discards a partially received FORMAT block. It reports whether
// one was pending.
func (d *Decoder) Abandon() bool {
	pending := d.state == StateFormat
	d.reset()
	return pending
}

func (d *Decoder) reset() {
	d.state = StateNormal
	d.metric = ""
	d.schema = nil
}

func (d *Decoder) decodeSeries(line string, fields []string) (bus.Message, error) {
	if len(fields) == 1 && fields[0] == cmdFormatEnd {
		msg := bus.Format{Metric: d.metric, Schema: d.schema}
		d.reset()
		return msg, nil
	}

	if len(fields) != 5 {
		d.reset()
		return nil, liberrors.ProtocolError(fmt.Sprintf("series line has %d fields, want 5", len(fields)), line)
	}

	series, err := parseSeries(fields)
	if err != nil {
		d.reset()
		return nil, liberrors.NewError(liberrors.ErrTypeProtocol, "malformed series line").
			WithCause(err).
			WithComponent("protocol").
			WithOperation("decode").
			WithContext("line", line).
			Build()
	}
	d.schema = append(d.schema, series)
	return nil, nil
}

func parseSeries(fields []string) (metrics.Series, error) {
	kind, err := metrics.ParseKind(fields[0])
	if err != nil {
		return metrics.Series{}, err
	}
	heartbeat, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return metrics.Series{}, fmt.Errorf("heartbeat: %w", err)
	}
	min, err := metrics.ParseBound(fields[3])
	if err != nil {
		return metrics.Series{}, fmt.Errorf("min: %w", err)
	}
	max, err := metrics.ParseBound(fields[4])
	if err != nil {
		return metrics.Series{}, fmt.Errorf("max: %w", err)
	}
	return metrics.Series{Kind: kind, Name: fields[1], Heartbeat: heartbeat, Min: min, Max: max}, nil
}

// decodeData parses "<metric> <timestamp> <value>..." after the DATA token.
func decodeData(line string, fields []string) (bus.Message, error) {
	if len(fields) < 3 {
		return nil, liberrors.ProtocolError("DATA needs a metric, a timestamp and at least one value", line)
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, liberrors.NewError(liberrors.ErrTypeProtocol, "malformed timestamp").
			WithCause(err).WithComponent("protocol").WithOperation("decode").WithContext("line", line).Build()
	}

	values := make([]int64, 0, len(fields)-2)
	for _, f := range fields[2:] {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, liberrors.NewError(liberrors.ErrTypeProtocol, "malformed value").
				WithCause(err).WithComponent("protocol").WithOperation("decode").WithContext("line", line).Build()
		}
		values = append(values, v)
	}

	return bus.Data{Metric: fields[0], Timestamp: ts, Values: values}, nil
}
