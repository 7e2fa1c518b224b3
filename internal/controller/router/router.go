// Package router fans decoded samples out to the storage plugins subscribed
// to their metric topic.
package router

import (
	"log/slog"
	"sort"
	"strings"

	"liebert/internal/bus"
	"liebert/internal/metrics"
)

// Wildcard ends a topic that matches every metric sharing its prefix, as in
// builtin.hdd.* or a lone *.
const Wildcard = "*"

type prefixRoute struct {
	prefix string
	sender bus.Sender
}

// Router maps topics to subscriber buses. It is filled before routing
// starts and only read afterwards. Senders must be comparable.
type Router struct {
	exact    map[string][]bus.Sender
	prefixes []prefixRoute
	self     *metrics.SelfMonitor
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger.With("component", "router")
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(r *Router) {
		r.self = sm
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		exact:  make(map[string][]bus.Sender),
		logger: slog.Default().With("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add subscribes s to topic. Adding the same subscriber twice is a no-op.
func (r *Router) Add(topic string, s bus.Sender) {
	if prefix, ok := strings.CutSuffix(topic, Wildcard); ok {
		r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, sender: s})
		return
	}
	if contains(r.exact[topic], s) {
		return
	}
	r.exact[topic] = append(r.exact[topic], s)
}

// Channels returns the subscribers of topic in registration order, exact
// subscriptions first. A subscriber matched twice is listed once.
func (r *Router) Channels(topic string) []bus.Sender {
	out := append([]bus.Sender(nil), r.exact[topic]...)
	for _, p := range r.prefixes {
		if strings.HasPrefix(topic, p.prefix) && !contains(out, p.sender) {
			out = append(out, p.sender)
		}
	}
	return out
}

func contains(list []bus.Sender, s bus.Sender) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Route delivers a clone of m to every subscriber of its topic and returns
// how many received it. Messages without a topic, and topics nobody
// subscribed to, are dropped.
func (r *Router) Route(m bus.Message) int {
	topic, ok := bus.Topic(m)
	if !ok {
		return 0
	}
	subs := r.Channels(topic)
	for _, s := range subs {
		s.Send(m.Clone())
	}
	r.self.RecordRouted(len(subs))
	if len(subs) == 0 {
		r.logger.Debug("No subscribers", "topic", topic)
	}
	return len(subs)
}

// Topics lists the subscribed topics, wildcards included, in sorted order.
func (r *Router) Topics() []string {
	var out []string
	for t := range r.exact {
		out = append(out, t)
	}
	for _, p := range r.prefixes {
		out = append(out, p.prefix+Wildcard)
	}
	sort.Strings(out)
	return out
}
