// Package debug provides category-based debug logging.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): ASKGS_DEBUG env or logging.debug in config
//   - Levels (HOW MUCH detail): ASKGS_LOG_LEVEL env or logging.level in config
//
// Usage:
//
//	debug.Log("gateway", "request", "model", model, "attempt", n)
//	if debug.Enabled("rewriter") { /* expensive formatting */ }
//
// Categories: gateway, guardrail, rewriter, answerengine, classifier,
// engine, session, auth, transport, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// LevelTrace is below slog.LevelDebug. At TRACE, full prompts and
// model outputs are logged.
const LevelTrace = slog.LevelDebug - 4

const (
	envCategories = "ASKGS_DEBUG"
	envLevel      = "ASKGS_LOG_LEVEL"
	envFormat     = "ASKGS_LOG_FORMAT"
)

// categories is read-only after Init.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv(envCategories))
}

// Options configure the process-wide logger.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
}

// Init configures categories and installs the default slog handler.
// Environment variables override the supplied options.
func Init(opts Options) {
	categories = parseCategories(firstNonEmpty(os.Getenv(envCategories), opts.Categories))

	level := firstNonEmpty(os.Getenv(envLevel), opts.Level, "INFO")
	format := firstNonEmpty(os.Getenv(envFormat), opts.Format, "text")
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, ParseLevel(level))))
}

// NewHandler builds a slog handler writing to w in the given format.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	ho := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// It is a no-op when the category is disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text to stderr without slog formatting, for
// copy-paste-ready prompts. Emitted only at TRACE for an enabled category.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	return slices.Sorted(maps.Keys(categories))
}

// Truncate shortens s to maxLen runes, appending "..." when it cut anything.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == ',' || r == ' ' }) {
		m[cat] = true
	}
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
