// Package diag is the diagnostics sink the assembler pipeline reports
// through: source-located errors and warnings, counted per phase so the
// driver can abort after any phase that accumulates errors.
package diag

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Pos is a source location: file, line, column. Line/Col are 1-based;
// zero means "unknown" (e.g. a diagnostic synthesized by the optimiser
// that has no single source line).
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return p.File
	}
	if p.Col == 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Kind is the abstract error taxonomy of spec.md §7, orthogonal to
// whether a given diagnostic is reported as an error or a warning.
type Kind int

const (
	KindSyntax Kind = iota
	KindType
	KindValue
	KindRedefined
	KindUndefined
	KindTooComplex
	KindNotAbsolute
	KindNotConstant
	KindIO
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindType:
		return "type"
	case KindValue:
		return "value"
	case KindRedefined:
		return "redefined"
	case KindUndefined:
		return "undefined"
	case KindTooComplex:
		return "too-complex"
	case KindNotAbsolute:
		return "not-absolute"
	case KindNotConstant:
		return "not-constant"
	case KindIO:
		return "io"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity distinguishes errors (always fatal to the containing phase)
// from warnings (fatal only when the sink is in warning-error mode).
type Severity int

const (
	Warning Severity = iota
	Error
)

// Diagnostic is one recorded error or warning.
type Diagnostic struct {
	Pos      Pos
	Kind     Kind
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	sev := "warning"
	if d.Severity == Error {
		sev = "error"
	}
	return fmt.Sprintf("%s: %s: %s", d.Pos, sev, d.Message)
}

// Sink accumulates diagnostics for the whole pipeline run and exposes the
// error-count checks the driver performs between phases (spec.md §7).
type Sink struct {
	log           *logrus.Logger
	diags         []Diagnostic
	errorCount    int
	warningCount  int
	warningsAsErr bool
}

// NewSink constructs a Sink. warningsAsErr mirrors the CLI's
// -Werror/--warning-error flag.
func NewSink(warningsAsErr bool) *Sink {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &Sink{log: log, warningsAsErr: warningsAsErr}
}

func (s *Sink) record(d Diagnostic) {
	s.diags = append(s.diags, d)
	switch d.Severity {
	case Error:
		s.errorCount++
		s.log.WithFields(logrus.Fields{"kind": d.Kind.String(), "pos": d.Pos.String()}).Error(d.Message)
	case Warning:
		s.warningCount++
		s.log.WithFields(logrus.Fields{"kind": d.Kind.String(), "pos": d.Pos.String()}).Warn(d.Message)
	}
}

// Errorf records an error-severity diagnostic.
func (s *Sink) Errorf(pos Pos, kind Kind, format string, args ...interface{}) {
	s.record(Diagnostic{Pos: pos, Kind: kind, Severity: Error, Message: fmt.Sprintf(format, args...)})
}

// Warnf records a warning-severity diagnostic.
func (s *Sink) Warnf(pos Pos, kind Kind, format string, args ...interface{}) {
	s.record(Diagnostic{Pos: pos, Kind: kind, Severity: Warning, Message: fmt.Sprintf(format, args...)})
}

// ErrorCount returns the number of error-severity diagnostics recorded.
func (s *Sink) ErrorCount() int { return s.errorCount }

// WarningCount returns the number of warning-severity diagnostics recorded.
func (s *Sink) WarningCount() int { return s.warningCount }

// HasErrors reports whether any error-severity diagnostic (or, in
// warning-error mode, any diagnostic at all) has been recorded. The driver
// calls this after every phase per spec.md §7.
func (s *Sink) HasErrors() bool {
	if s.warningsAsErr && s.warningCount > 0 {
		return true
	}
	return s.errorCount > 0
}

// All returns every diagnostic recorded so far, in recording order.
func (s *Sink) All() []Diagnostic {
	return s.diags
}

// SetLevel adjusts the underlying logger's verbosity; used by the CLI's
// -w (suppress warnings) flag to drop warning-level log lines while still
// counting them.
func (s *Sink) SetLevel(lvl logrus.Level) {
	s.log.SetLevel(lvl)
}
