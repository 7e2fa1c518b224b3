package security

import (
	"context"
	"os/exec"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "liebert/internal/errors"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

var anyWord = []*regexp.Regexp{regexp.MustCompile(`^[a-z0-9.]+$`)}

func TestRunCapturesOutput(t *testing.T) {
	e := NewExecutor()
	e.Allow("echo", Policy{ExecutablePath: lookPath(t, "echo"), AllowedArgs: anyWord})

	res, err := e.Run(context.Background(), "echo", "hello", "rrd")
	require.NoError(t, err)
	assert.Equal(t, "hello rrd\n", res.Stdout)
	assert.Zero(t, res.ExitCode)
}

func TestRunRejectsUnlistedCommandsAndArgs(t *testing.T) {
	e := NewExecutor()
	e.Allow("echo", Policy{ExecutablePath: lookPath(t, "echo"), AllowedArgs: anyWord})

	_, err := e.Run(context.Background(), "rm", "x")
	require.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, liberrors.ErrTypeExternal, liberrors.GetErrorType(err))

	_, err = e.Run(context.Background(), "echo", "UPPER")
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestRunDetectsInjection(t *testing.T) {
	e := NewExecutor()
	e.Allow("echo", Policy{ExecutablePath: lookPath(t, "echo"), AllowedArgs: []*regexp.Regexp{regexp.MustCompile(`.*`)}})

	for _, arg := range []string{"a;b", "$(id)", "`id`", "../etc", "a\nb"} {
		_, err := e.Run(context.Background(), "echo", arg)
		assert.ErrorIs(t, err, ErrNotAllowed, arg)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	e := NewExecutor()
	e.Allow("false", Policy{ExecutablePath: lookPath(t, "false")})

	res, err := e.Run(context.Background(), "false")
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunTimesOut(t *testing.T) {
	e := NewExecutor()
	e.Allow("sleep", Policy{
		ExecutablePath:   lookPath(t, "sleep"),
		AllowedArgs:      anyWord,
		MaxExecutionTime: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := e.Run(context.Background(), "sleep", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", b.String())
	assert.True(t, b.exceeded)
}

func TestValidateNames(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		input    string
		ok       bool
	}{
		{"ipv4", ValidateHostname, "10.0.0.5", true},
		{"ipv6", ValidateHostname, "fe80::1", true},
		{"hostname", ValidateHostname, "web-01.example.com", true},
		{"host traversal", ValidateHostname, "../etc", false},
		{"host slash", ValidateHostname, "a/b", false},
		{"host flag", ValidateHostname, "-rf", false},
		{"empty host", ValidateHostname, "", false},
		{"dotted metric", ValidateMetricName, "builtin.hdd.var_log", true},
		{"metric slash", ValidateMetricName, "builtin/cpu", false},
		{"metric dots", ValidateMetricName, "builtin..cpu", false},
		{"series", ValidateSeriesName, "rx_bytes", true},
		{"series too long", ValidateSeriesName, "abcdefghijklmnopqrst", false},
		{"series dash", ValidateSeriesName, "rx-bytes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSecureStringMasks(t *testing.T) {
	s := NewSecureString("postgres://user:secret@db/liebert")
	assert.Equal(t, "post***", s.String())
	assert.Equal(t, "***", NewSecureString("short").String())
	assert.False(t, s.IsEmpty())
}
