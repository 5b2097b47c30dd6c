// Package statuslog layers the original logger.py's header/rule/
// summary-table affordances on top of github.com/rs/zerolog, grounded
// on cuemby/warren's pkg/log. Unlike warren's package-level Logger,
// this one is an explicit value passed to components that need it --
// config.Config's "no package singletons" rule (spec §9) applies
// equally to logging.
package statuslog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the header/rule/table helpers the
// Python original's Logger class exposed.
type Logger struct {
	zl     zerolog.Logger
	out    io.Writer
	colors bool
}

// New builds a Logger writing to out (os.Stdout if nil). Colored
// header/rule output is enabled only when out is an attached terminal,
// matching the original's ANSI-aware terminal detection.
func New(out io.Writer, debug bool) Logger {
	if out == nil {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if env := os.Getenv("DOCSYNC_LOG_LEVEL"); env != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
			level = lvl
		}
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()

	colors := false
	if f, ok := out.(*os.File); ok {
		colors = isatty.IsTerminal(f.Fd())
	}
	return Logger{zl: zl, out: out, colors: colors}
}

func (l Logger) colorize(c *color.Color, s string) string {
	if !l.colors {
		return s
	}
	return c.Sprint(s)
}

// Debug logs a debug-level line (spec §9 verbose/debug mode, the
// original's logger.debug).
func (l Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Info logs an info-level line.
func (l Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Success logs completion of a unit of work -- zerolog has no
// dedicated level for this, so it rides at Info with a field the way
// the original's LogLevel.SUCCESS rode between INFO and WARNING.
func (l Logger) Success(msg string) {
	l.zl.Info().Bool("success", true).Msg(msg)
}

// Warn logs a warning-level line.
func (l Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs an error-level line.
func (l Logger) Error(msg string, err error) {
	l.zl.Error().Err(err).Msg(msg)
}

// Header prints a boxed section title, the Go equivalent of the
// original's logger.header().
func (l Logger) Header(msg string) {
	bar := strings.Repeat("=", 40)
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, l.colorize(color.New(color.Bold, color.FgMagenta), bar))
	fmt.Fprintln(l.out, l.colorize(color.New(color.Bold, color.FgMagenta), " "+msg))
	fmt.Fprintln(l.out, l.colorize(color.New(color.Bold, color.FgMagenta), bar))
}

// Rule prints a thin divider, optionally labeled -- the original's
// logger.rule().
func (l Logger) Rule(label string) {
	if label == "" {
		fmt.Fprintln(l.out, l.colorize(color.New(color.FgCyan), strings.Repeat("-", 40)))
		return
	}
	line := fmt.Sprintf("%s %s %s", strings.Repeat("-", 10), label, strings.Repeat("-", 10))
	fmt.Fprintln(l.out, l.colorize(color.New(color.FgCyan), line))
}

// SummaryRow is one line of a folder-sync summary table (spec §4.8
// Stats rendering).
type SummaryRow struct {
	Label string
	Count int
}

// SummaryTable renders aligned label/count rows, replacing the
// original's ad hoc print-formatted summary block.
func (l Logger) SummaryTable(rows []SummaryRow) {
	width := 0
	for _, r := range rows {
		if len(r.Label) > width {
			width = len(r.Label)
		}
	}
	for _, r := range rows {
		label := r.Label + strings.Repeat(" ", width-len(r.Label))
		line := fmt.Sprintf("  %s  %d", label, r.Count)
		col := color.New(color.FgGreen)
		if strings.EqualFold(r.Label, "failed") && r.Count > 0 {
			col = color.New(color.FgRed)
		}
		fmt.Fprintln(l.out, l.colorize(col, line))
	}
}
