package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	hostRegex   = regexp.MustCompile(`^[a-zA-Z0-9.:-]+$`)
	metricRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)
	seriesRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{1,19}$`)
)

// ValidateHostname accepts host names and IPv4 or IPv6 literals.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	if len(hostname) > 255 {
		return fmt.Errorf("hostname too long: %d > 255", len(hostname))
	}
	if !hostRegex.MatchString(hostname) {
		return fmt.Errorf("hostname %q contains invalid characters", hostname)
	}
	if strings.Contains(hostname, "..") || strings.HasPrefix(hostname, "-") {
		return fmt.Errorf("hostname %q is not allowed", hostname)
	}
	return nil
}

// ValidateMetricName accepts dotted metric names such as builtin.hdd.var_log.
func ValidateMetricName(name string) error {
	if name == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if len(name) > 200 {
		return fmt.Errorf("metric name too long: %d > 200", len(name))
	}
	if !metricRegex.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("metric name %q is invalid", name)
	}
	return nil
}

// ValidateSeriesName enforces rrdtool's data source naming rule.
func ValidateSeriesName(name string) error {
	if !seriesRegex.MatchString(name) {
		return fmt.Errorf("series name %q must be 1 to 19 characters of [a-zA-Z0-9_]", name)
	}
	return nil
}

// SecureString keeps a secret out of logs.
type SecureString struct {
	value string
}

func NewSecureString(value string) SecureString {
	return SecureString{value: value}
}

// String returns a masked value.
func (s SecureString) String() string {
	if len(s.value) <= 8 {
		return "***"
	}
	return s.value[:4] + "***"
}

// Value returns the actual value.
func (s SecureString) Value() string {
	return s.value
}

func (s SecureString) IsEmpty() bool {
	return s.value == ""
}
