// Package logger provides the orchestrator's console and file logging
// implementations. Both are thread-safe and support log-level filtering;
// color output is enabled automatically when writing to a TTY.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Log level constants for filtering.
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

func normalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "trace"
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return "info"
	}
}

func levelRank(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

// ConsoleLogger logs orchestrator narrative events to a writer, one line
// per event, prefixed with an [HH:MM:SS] timestamp. It is safe for
// concurrent use by the event loop and any number of worker-monitoring
// goroutines.
type ConsoleLogger struct {
	writer   io.Writer
	logLevel string
	mu       sync.Mutex
	color    bool
	scheme   *colorScheme
}

// NewConsoleLogger creates a ConsoleLogger writing to w at the given
// minimum log level (trace/debug/info/warn/error; defaults to info on an
// unrecognized value). A nil writer discards everything.
func NewConsoleLogger(w io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:   w,
		logLevel: normalizeLogLevel(logLevel),
		color:    isTerminal(w),
		scheme:   newColorScheme(),
	}
}

func (c *ConsoleLogger) log(level, msg string) {
	if c.writer == nil || levelRank(level) < levelRank(c.logLevel) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
}

// LevelStarted logs a level transitioning to running.
func (c *ConsoleLogger) LevelStarted(level, taskCount int) {
	c.log("info", fmt.Sprintf("level %d: starting (%d tasks)", level, taskCount))
}

// TaskAssigned logs a scheduler dispatch decision.
func (c *ConsoleLogger) TaskAssigned(workerID int, taskID string) {
	label := c.scheme.label.Sprintf("worker %d", workerID)
	c.log("info", fmt.Sprintf("%s: assigned %s", label, taskID))
}

// TaskCompleted logs a task reaching a terminal state.
func (c *ConsoleLogger) TaskCompleted(taskID, status string) {
	colored := formatWorkerStatus(c.scheme, status)
	c.log("info", fmt.Sprintf("task %s: %s", taskID, colored))
}

// WorkerStalled logs a detected stall or crash (§4.5/§4.7).
func (c *ConsoleLogger) WorkerStalled(workerID int, cause string) {
	c.log("warn", fmt.Sprintf("worker %d: stalled (%s)", workerID, c.scheme.warn.Sprint(cause)))
}

// Escalated logs an unretryable failure surfaced to the operator.
func (c *ConsoleLogger) Escalated(taskID, category, message string) {
	c.log("error", fmt.Sprintf("task %s: escalated [%s] %s", taskID, c.scheme.fail.Sprint(category), message))
}

// GateResult logs one gate's outcome during a merge.
func (c *ConsoleLogger) GateResult(level int, gate, outcome string) {
	c.log("info", fmt.Sprintf("level %d: %s", level, formatGateOutcome(c.scheme, gate, outcome)))
}

// LevelMerged logs a successful level-drain merge.
func (c *ConsoleLogger) LevelMerged(level int, commit string) {
	c.log("info", fmt.Sprintf("level %d: merged as %s", level, c.scheme.success.Sprint(commit)))
}

// LevelFailed logs a level reaching its terminal failed state.
func (c *ConsoleLogger) LevelFailed(level int, reason string) {
	c.log("error", fmt.Sprintf("level %d: %s", level, c.scheme.fail.Sprint(reason)))
}

// Info, Warn, and Error log freeform narrative lines at the given level,
// for call sites that don't fit one of the structured helpers above.
func (c *ConsoleLogger) Info(msg string)  { c.log("info", msg) }
func (c *ConsoleLogger) Warn(msg string)  { c.log("warn", msg) }
func (c *ConsoleLogger) Error(msg string) { c.log("error", msg) }
func (c *ConsoleLogger) Debug(msg string) { c.log("debug", msg) }
