package config

// Keys shared by both binaries.
const (
	KeyControllerHost  = "controller.host"
	KeyControllerPort  = "controller.port"
	KeyRetryTimeout    = "controller.retry_timeout"
	KeyMaxRetries      = "controller.max_retries"
	KeyAgentMetrics    = "agent.metrics_listen"
	KeyControllerStats = "controller.metrics_listen"
)

// Collectors lists the built-in agent collector ids.
var Collectors = []string{
	"builtin.cpu",
	"builtin.memory",
	"builtin.load",
	"builtin.hdd",
	"builtin.network",
	"builtin.system",
}

// Sinks lists the built-in controller storage plugin ids.
var Sinks = []string{
	"builtin.rrd",
	"builtin.sql",
	"builtin.nats",
}

// DefaultTopics subscribes a sink to every built-in collector.
const DefaultTopics = "builtin.cpu,builtin.memory,builtin.load,builtin.system,builtin.hdd.*,builtin.network.*"

func common() map[string]string {
	return map[string]string{
		KeyControllerHost: "127.0.0.1",
		KeyControllerPort: "7777",
	}
}

// AgentDefaults returns the agent's built-in configuration layer.
func AgentDefaults() map[string]string {
	d := common()
	d[KeyRetryTimeout] = "10000"
	d[KeyMaxRetries] = "10"
	d[KeyAgentMetrics] = ""

	d["builtin.cpu.enabled"] = "true"
	d["builtin.cpu.interval"] = "60"
	d["builtin.memory.enabled"] = "true"
	d["builtin.memory.interval"] = "60"
	d["builtin.load.enabled"] = "true"
	d["builtin.load.interval"] = "60"
	d["builtin.hdd.enabled"] = "false"
	d["builtin.hdd.interval"] = "300"
	d["builtin.hdd.mountpoints"] = "/"
	d["builtin.network.enabled"] = "false"
	d["builtin.network.interval"] = "60"
	d["builtin.network.interfaces"] = "auto"
	d["builtin.system.enabled"] = "false"
	d["builtin.system.interval"] = "300"
	return d
}

// ControllerDefaults returns the controller's built-in configuration layer.
func ControllerDefaults() map[string]string {
	d := common()
	d[KeyControllerStats] = ""

	d["builtin.rrd.enabled"] = "true"
	d["builtin.rrd.binary"] = "/usr/bin/rrdtool"
	d["builtin.rrd.data"] = "/var/lib/liebert/rrd"
	d["builtin.rrd.step"] = "5"
	d["builtin.rrd.timeout"] = "30"
	d["builtin.rrd.topics"] = DefaultTopics

	d["builtin.sql.enabled"] = "false"
	d["builtin.sql.driver"] = "postgres"
	d["builtin.sql.table"] = "samples"
	d["builtin.sql.topics"] = DefaultTopics

	d["builtin.nats.enabled"] = "false"
	d["builtin.nats.url"] = "nats://127.0.0.1:4222"
	d["builtin.nats.subject_prefix"] = "liebert"
	d["builtin.nats.topics"] = DefaultTopics
	return d
}
