package listener

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"liebert/internal/bus"
	"liebert/internal/plugin"
	"liebert/internal/protocol"
	"liebert/internal/worker"
)

// serve runs the reader and writer of one connection and waits for both.
func (l *Listener) serve(session string, conn net.Conn) error {
	host := RemoteHost(conn.RemoteAddr())
	logger := l.logger.With("session", session, "host", host)
	logger.Info("Agent connected")

	writerInbox := bus.New("listener_writer")
	reader := worker.Spawn("listener_reader", func() {
		defer func() {
			conn.Close()
			writerInbox.TrySend(bus.Shutdown{Reason: "connection closed"})
		}()
		l.read(conn, host, logger)
	})
	writer := worker.Spawn("listener_writer", func() {
		defer writerInbox.Close()
		l.write(writerInbox, logger)
	})
	l.watch(reader)
	l.watch(writer)

	return worker.JoinAll(reader, writer)
}

// read decodes lines until the peer goes away or sends garbage. A decode
// error drops this connection only.
func (l *Listener) read(conn net.Conn, host string, logger *slog.Logger) {
	dec := protocol.NewDecoder()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), protocol.MaxLineLength)
	for sc.Scan() {
		m, err := dec.Decode(sc.Text())
		if err != nil {
			l.self.RecordDecodeError()
			logger.Warn("Closing connection on malformed input", "error", err)
			return
		}
		l.self.RecordDecoded()
		if m != nil {
			l.routing.Send(bus.WithHost(m, host))
		}
	}

	if dec.Abandon() {
		logger.Warn("Connection ended inside a FORMAT block, partial schema discarded")
	}
	switch err := sc.Err(); {
	case err == nil:
		logger.Info("Agent disconnected")
	case errors.Is(err, bufio.ErrTooLong):
		l.self.RecordDecodeError()
		logger.Warn("Closing connection on malformed input", "error", err, "limit", protocol.MaxLineLength)
	case errors.Is(err, net.ErrClosed):
		logger.Debug("Connection closed by controller")
	default:
		logger.Warn("Read failed", "error", err)
	}
}

// write is the outbound half of a connection. No controller to agent
// commands exist yet, so it only waits for Shutdown.
func (l *Listener) write(inbox *bus.Bus, logger *slog.Logger) {
	for {
		m, err := inbox.Recv(context.Background())
		if err != nil {
			return
		}
		if s, ok := m.(bus.Shutdown); ok {
			logger.Debug("Writer stopped", "reason", s.Reason)
			return
		}
		plugin.Unexpected(logger, m)
	}
}
