// Package rrd stores samples in round robin database files by shelling out
// to rrdtool.
package rrd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/security"
)

const Name = "builtin.rrd"

// command is the executor allowlist name for the rrdtool binary.
const command = "rrdtool"

// Archives keep the maximum of 1, 5, 15, 60 and 720 steps, enough for an
// hour, half a day, two days, a week and a month at the default step.
var Archives = []string{
	"RRA:MAX:0.5:1:60",
	"RRA:MAX:0.5:5:144",
	"RRA:MAX:0.5:15:96",
	"RRA:MAX:0.5:60:168",
	"RRA:MAX:0.5:720:62",
}

// Runner executes an allowlisted command.
type Runner interface {
	Run(ctx context.Context, command string, args ...string) (security.Result, error)
}

// Settings locates the tool and the files.
type Settings struct {
	Binary  string
	DataDir string
	Step    int
	Timeout time.Duration
}

// SettingsFromConfig reads builtin.rrd.binary, data, step and timeout (s).
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if err := cfg.Require(Name+".binary", Name+".data"); err != nil {
		return Settings{}, err
	}
	step, err := cfg.Int(Name + ".step")
	if err != nil {
		return Settings{}, err
	}
	timeout, err := cfg.Duration(Name+".timeout", time.Second)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Binary:  cfg.MustGet(Name + ".binary"),
		DataDir: filepath.Clean(cfg.MustGet(Name + ".data")),
		Step:    step,
		Timeout: timeout,
	}, nil
}

// Writer keeps the last schema per host-metric identity and issues create
// and update calls.
type Writer struct {
	settings Settings
	runner   Runner
	schemas  map[string]metrics.Schema
	logger   *slog.Logger
	self     *metrics.SelfMonitor
}

var _ plugin.Sink = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger.With("plugin", Name)
	}
}

// WithRunner replaces the allowlisted executor.
func WithRunner(r Runner) Option {
	return func(w *Writer) {
		w.runner = r
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(w *Writer) {
		w.self = sm
	}
}

func New(settings Settings, opts ...Option) *Writer {
	w := &Writer{
		settings: settings,
		schemas:  make(map[string]metrics.Schema),
		logger:   slog.Default().With("plugin", Name),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.runner == nil {
		w.runner = NewExecutor(settings)
	}
	return w
}

// NewExecutor allows exactly the arguments this package generates.
func NewExecutor(s Settings) *security.Executor {
	dir := regexp.QuoteMeta(strings.TrimSuffix(filepath.Clean(s.DataDir), "/"))
	e := security.NewExecutor()
	e.Allow(command, security.Policy{
		ExecutablePath:   s.Binary,
		MaxExecutionTime: s.Timeout,
		AllowedArgs: []*regexp.Regexp{
			regexp.MustCompile(`^(create|update|--step)$`),
			regexp.MustCompile(`^[0-9]+$`),
			regexp.MustCompile(`^` + dir + `/[a-zA-Z0-9_.:-]+\.rrd$`),
			regexp.MustCompile(`^DS:[a-zA-Z0-9_]{1,19}:(GAUGE|COUNTER):[0-9]+:(U|-?[0-9]+):(U|-?[0-9]+)$`),
			regexp.MustCompile(`^RRA:MAX:0\.5:[0-9]+:[0-9]+$`),
			regexp.MustCompile(`^[0-9]+(:-?[0-9]+)+$`),
		},
	})
	return e
}

func (w *Writer) Name() string { return Name }

// Path is the file backing host and metric.
func (w *Writer) Path(host, metric string) string {
	return filepath.Join(w.settings.DataDir, identity(host, metric)+".rrd")
}

func identity(host, metric string) string {
	return host + "-" + metric
}

func (w *Writer) HandleFormat(f bus.Format) {
	if err := validate(f.Host, f.Metric, f.Schema); err != nil {
		w.fail("Rejecting format", err, "host", f.Host, "metric", f.Metric)
		return
	}

	uid := identity(f.Host, f.Metric)
	if known, ok := w.schemas[uid]; ok && known.Equal(f.Schema) {
		w.logger.Debug("Schema unchanged", "uid", uid)
		return
	}

	if err := os.MkdirAll(w.settings.DataDir, 0o755); err != nil {
		w.fail("Cannot create data directory", err, "dir", w.settings.DataDir)
		return
	}
	path := w.Path(f.Host, f.Metric)
	if _, err := w.runner.Run(context.Background(), command, CreateArgs(path, w.settings.Step, f.Schema)...); err != nil {
		w.fail("rrdtool create failed", err, "path", path)
		return
	}
	w.schemas[uid] = f.Schema.Clone()
	w.logger.Info("Created round robin database", "path", path, "series", strings.Join(f.Schema.Names(), ","))
}

func (w *Writer) HandleData(d bus.Data) {
	if err := validate(d.Host, d.Metric, nil); err != nil {
		w.fail("Rejecting sample", err, "host", d.Host, "metric", d.Metric)
		return
	}
	if len(d.Values) == 0 {
		return
	}

	path := w.Path(d.Host, d.Metric)
	if _, known := w.schemas[identity(d.Host, d.Metric)]; !known {
		w.logger.Debug("Update without a known schema", "path", path)
	}
	if _, err := w.runner.Run(context.Background(), command, UpdateArgs(path, d.Timestamp, d.Values)...); err != nil {
		w.fail("rrdtool update failed", err, "path", path)
	}
}

func (w *Writer) Close() error { return nil }

func (w *Writer) fail(msg string, err error, args ...any) {
	w.self.RecordStorageFailure(Name)
	w.logger.Error(msg, append(args, "error", err)...)
}

func validate(host, metric string, schema metrics.Schema) error {
	if err := security.ValidateHostname(host); err != nil {
		return err
	}
	if err := security.ValidateMetricName(metric); err != nil {
		return err
	}
	for _, s := range schema {
		if err := security.ValidateSeriesName(s.Name); err != nil {
			return err
		}
	}
	return nil
}

// CreateArgs builds the rrdtool create command line.
func CreateArgs(path string, step int, schema metrics.Schema) []string {
	args := []string{"create", path, "--step", strconv.Itoa(step)}
	for _, s := range schema {
		args = append(args, fmt.Sprintf("DS:%s:%s:%d:%s:%s", s.Name, s.Kind, s.Heartbeat, s.Min, s.Max))
	}
	return append(args, Archives...)
}

// UpdateArgs builds the rrdtool update command line.
func UpdateArgs(path string, ts int64, values []int64) []string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(ts, 10))
	for _, v := range values {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return []string{"update", path, b.String()}
}
