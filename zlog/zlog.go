// Package zlog is the core's structured logging seam. It keeps the
// shape of the teacher's (erparts/go-avebi) package-level Logger and
// SetLogger, under the name SetSink — a *log.Logger or any other
// Printf-shaped sink plugs in as before — and adds module tags and
// severities.
package zlog

import (
	"fmt"
	"log"
)

// Logger is anything that can render a formatted line. A *log.Logger
// satisfies it already; so does the teacher's original interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Severity mirrors the levels §6 ("Observability") expects a
// structured sink to carry.
type Severity uint8

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

var sink Logger = log.Default()

// SetSink replaces the package-wide log sink. Call once at startup;
// this mirrors the teacher's SetLogger and is not safe to call
// concurrently with logging.
func SetSink(l Logger) { sink = l }

// Module is a logger tagged with a component name. The tags in use
// are player, demux, decoder, audioplayer, videoplayer, render.gpu and
// render.software; avsync does not log.
type Module struct {
	Tag string
}

// For returns a [Module] logger tagged with name.
func For(name string) Module { return Module{Tag: name} }

func (m Module) log(sev Severity, format string, v ...any) {
	sink.Printf("[%s] %s: %s", sev, m.Tag, fmt.Sprintf(format, v...))
}

func (m Module) Debugf(format string, v ...any) { m.log(Debug, format, v...) }
func (m Module) Infof(format string, v ...any)  { m.log(Info, format, v...) }
func (m Module) Warnf(format string, v ...any)  { m.log(Warn, format, v...) }
func (m Module) Errorf(format string, v ...any) { m.log(Error, format, v...) }
