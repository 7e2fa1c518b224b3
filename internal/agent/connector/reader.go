package connector

import (
	"bufio"
	"errors"
	"net"

	"liebert/internal/bus"
)

// read observes lines sent by the controller. No commands are defined in
// this direction yet, so lines are only logged.
func (c *Connector) read(conn net.Conn, inbox *bus.Bus) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		c.logger.Debug("Received line from controller", "line", sc.Text())
	}

	switch err := sc.Err(); {
	case err == nil:
		c.logger.Warn("Controller closed the connection")
	case errors.Is(err, net.ErrClosed):
		c.logger.Debug("Reader stopped, socket closed")
	default:
		c.logger.Warn("Read from controller failed", "error", err)
	}

	for {
		m, ok := inbox.TryRecv()
		if !ok {
			return
		}
		if s, ok := m.(bus.Shutdown); ok {
			c.logger.Debug("Reader shutting down", "reason", s.Reason)
		}
	}
}
