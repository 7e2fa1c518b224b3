// Package security runs external tools under an allowlist and validates
// names before they reach a command line or a file path.
package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	liberrors "liebert/internal/errors"
)

// ErrNotAllowed is returned for commands or arguments outside the allowlist.
var ErrNotAllowed = errors.New("not allowed")

// Policy is the allowlist entry for one command.
type Policy struct {
	// ExecutablePath is the full path to the allowed executable.
	ExecutablePath string

	// AllowedArgs are patterns every argument must match one of.
	AllowedArgs []*regexp.Regexp

	// MaxExecutionTime bounds a single run.
	MaxExecutionTime time.Duration

	// AllowEnvironment passes the caller's environment through.
	AllowEnvironment bool
}

// Executor runs allowlisted commands.
type Executor struct {
	policies           map[string]Policy
	defaultTimeout     time.Duration
	maxOutputSize      int
	disallowedPatterns []*regexp.Regexp
}

// Result is the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

func NewExecutor() *Executor {
	e := &Executor{
		policies:       make(map[string]Policy),
		defaultTimeout: 30 * time.Second,
		maxOutputSize:  1024 * 1024,
	}
	e.compileDisallowedPatterns()
	return e
}

// Allow registers the policy for command.
func (e *Executor) Allow(command string, p Policy) {
	if p.MaxExecutionTime <= 0 {
		p.MaxExecutionTime = e.defaultTimeout
	}
	e.policies[command] = p
}

func (e *Executor) compileDisallowedPatterns() {
	patterns := []string{
		`[;&|]`,    // command separators
		`\$\(.*\)`, // command substitution
		"`.*`",     // backtick substitution
		`\.\./`,    // path traversal
		`\x00`,     // null bytes
		`[\r\n]`,
	}

	e.disallowedPatterns = make([]*regexp.Regexp, len(patterns))
	for i, pattern := range patterns {
		e.disallowedPatterns[i] = regexp.MustCompile(pattern)
	}
}

// Run executes command with args. A non-zero exit is returned as an
// external error together with the result.
func (e *Executor) Run(ctx context.Context, command string, args ...string) (Result, error) {
	var result Result
	start := time.Now()

	policy, err := e.validateCommand(command, args)
	if err != nil {
		return result, liberrors.ExternalError(command, err)
	}
	if err := e.detectInjection(args); err != nil {
		return result, liberrors.ExternalError(command, err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, policy.MaxExecutionTime)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, policy.ExecutablePath, args...)
	if !policy.AllowEnvironment {
		cmd.Env = []string{}
	}
	cmd.Dir = os.TempDir()

	stdout := &limitedBuffer{max: e.maxOutputSize}
	stderr := &limitedBuffer{max: e.maxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", policy.MaxExecutionTime, err)
		}
		if msg := strings.TrimSpace(result.Stderr); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return result, liberrors.ExternalError(command, err)
	}
	if stdout.exceeded || stderr.exceeded {
		return result, liberrors.ExternalError(command, fmt.Errorf("output exceeded %d bytes", e.maxOutputSize))
	}
	return result, nil
}

func (e *Executor) validateCommand(command string, args []string) (Policy, error) {
	policy, exists := e.policies[command]
	if !exists {
		return Policy{}, fmt.Errorf("command %q: %w", command, ErrNotAllowed)
	}

	for _, arg := range args {
		allowed := false
		for _, pattern := range policy.AllowedArgs {
			if pattern.MatchString(arg) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Policy{}, fmt.Errorf("argument %q for %s: %w", arg, command, ErrNotAllowed)
		}
	}
	return policy, nil
}

func (e *Executor) detectInjection(args []string) error {
	for _, arg := range args {
		for _, pattern := range e.disallowedPatterns {
			if pattern.MatchString(arg) {
				return fmt.Errorf("suspicious argument %q: %w", arg, ErrNotAllowed)
			}
		}
	}
	return nil
}

// limitedBuffer keeps at most max bytes and remembers whether more came.
type limitedBuffer struct {
	buf      bytes.Buffer
	max      int
	exceeded bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); len(p) > room {
		b.exceeded = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string { return b.buf.String() }
