package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error returns the error message.
func (e ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

// Error returns a combined error message.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e ValidationErrors) IsEmpty() bool {
	return len(e) == 0
}

// Validator collects validation errors.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string, value interface{}) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Validate returns all validation errors, or nil if validation passed.
func (v *Validator) Validate() error {
	if v.errors.IsEmpty() {
		return nil
	}
	return v.errors
}

// ValidateRequired checks that a key is present and not blank.
func (v *Validator) ValidateRequired(c *Config, field string) {
	value, ok := c.Get(field)
	if !ok || strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", nil)
	}
}

// ValidateRange checks that an integer key lies within [min, max].
func (v *Validator) ValidateRange(c *Config, field string, min, max int) {
	n, err := c.Int(field)
	if err != nil {
		v.AddError(field, "must be an integer", valueOf(c, field))
		return
	}
	if n < min {
		v.AddError(field, fmt.Sprintf("must be at least %d", min), n)
	}
	if n > max {
		v.AddError(field, fmt.Sprintf("must be at most %d", max), n)
	}
}

// ValidateBool checks that a key parses as a boolean.
func (v *Validator) ValidateBool(c *Config, field string) {
	if _, err := c.Bool(field); err != nil {
		v.AddError(field, "must be true or false", valueOf(c, field))
	}
}

// ValidateOneOf checks that a key holds one of the allowed values.
func (v *Validator) ValidateOneOf(c *Config, field string, allowed ...string) {
	value, _ := c.Get(field)
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, "must be one of "+strings.Join(allowed, ", "), value)
}

// ValidateListenAddr checks an optional host:port listen address.
func (v *Validator) ValidateListenAddr(c *Config, field string) {
	value, _ := c.Get(field)
	if value == "" {
		return
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		v.AddError(field, "must be host:port", value)
	}
}

func valueOf(c *Config, field string) interface{} {
	if value, ok := c.Get(field); ok {
		return value
	}
	return nil
}

func (v *Validator) validateEndpoint(c *Config) {
	v.ValidateRequired(c, KeyControllerHost)
	v.ValidateRange(c, KeyControllerPort, 1, 65535)
}

// ValidateAgent checks every key the agent reads at startup.
func ValidateAgent(c *Config) error {
	v := NewValidator()
	v.validateEndpoint(c)
	v.ValidateRange(c, KeyRetryTimeout, 1, 24*60*60*1000)
	v.ValidateRange(c, KeyMaxRetries, 0, 1<<31-1)
	v.ValidateListenAddr(c, KeyAgentMetrics)

	for _, id := range Collectors {
		enabled := id + ".enabled"
		if _, ok := c.Get(enabled); !ok {
			continue
		}
		v.ValidateBool(c, enabled)
		if c.Enabled(enabled) {
			v.ValidateRange(c, id+".interval", 1, 24*60*60)
		}
	}
	if c.Enabled("builtin.hdd.enabled") && len(c.List("builtin.hdd.mountpoints")) == 0 {
		v.AddError("builtin.hdd.mountpoints", "is required when builtin.hdd is enabled", nil)
	}
	if c.Enabled("builtin.network.enabled") && len(c.List("builtin.network.interfaces")) == 0 {
		v.AddError("builtin.network.interfaces", "is required when builtin.network is enabled", nil)
	}
	return v.Validate()
}

// ValidateController checks every key the controller reads at startup.
func ValidateController(c *Config) error {
	v := NewValidator()
	v.validateEndpoint(c)
	v.ValidateListenAddr(c, KeyControllerStats)

	for _, id := range Sinks {
		if _, ok := c.Get(id + ".enabled"); ok {
			v.ValidateBool(c, id+".enabled")
		}
	}
	if c.Enabled("builtin.rrd.enabled") {
		v.ValidateRequired(c, "builtin.rrd.binary")
		v.ValidateRequired(c, "builtin.rrd.data")
		v.ValidateRange(c, "builtin.rrd.step", 1, 24*60*60)
		v.ValidateRange(c, "builtin.rrd.timeout", 1, 60*60)
	}
	if c.Enabled("builtin.sql.enabled") {
		v.ValidateOneOf(c, "builtin.sql.driver", "postgres", "mysql")
		v.ValidateRequired(c, "builtin.sql.dsn")
		v.ValidateRequired(c, "builtin.sql.table")
	}
	if c.Enabled("builtin.nats.enabled") {
		v.ValidateRequired(c, "builtin.nats.url")
		v.ValidateRequired(c, "builtin.nats.subject_prefix")
	}
	return v.Validate()
}
