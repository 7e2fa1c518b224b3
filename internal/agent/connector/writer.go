package connector

import (
	"context"
	"net"

	"liebert/internal/bus"
	"liebert/internal/plugin"
	"liebert/internal/protocol"
)

// write drains the outbound queue onto the socket. Failed writes are logged
// and the sample is lost.
func (c *Connector) write(conn net.Conn, queue *bus.Bus) {
	enc := protocol.NewEncoder(conn)
	for {
		m, err := queue.Recv(context.Background())
		if err != nil {
			return
		}
		switch v := m.(type) {
		case bus.Data, bus.Format:
			if err := enc.Encode(m); err != nil {
				topic, _ := bus.Topic(m)
				c.logger.Warn("Dropping sample, write failed", "metric", topic, "error", err)
				c.self.RecordDropped()
				continue
			}
			c.self.RecordSent()
		case bus.Shutdown:
			c.logger.Debug("Writer shutting down", "reason", v.Reason, "pending", queue.Len())
			return
		default:
			plugin.Unexpected(c.logger, m)
		}
	}
}
