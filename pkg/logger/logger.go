package logger

import (
	"log"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

type Domain int

const (
	None = iota
	Eth
	Ava
	Opt
	Arb
	Sol
	Base
	Pol
)

var domainIDMap = map[uint32]Domain{
	0: Eth,
	1: Ava,
	2: Opt,
	3: Arb,
	5: Sol,
	6: Base,
	7: Pol,
}

var domainPrefixes = map[Domain]string{
	None: "",
	Eth:  "[ETH]  ",
	Ava:  "[AVA]  ",
	Opt:  "[OPT]  ",
	Arb:  "[ARB]  ",
	Sol:  "[SOL]  ",
	Base: "[BASE] ",
	Pol:  "[POL]  ",
}

var colors = map[Domain]color.Attribute{
	None: color.FgWhite,
	Eth:  color.FgHiGreen,
	Ava:  color.FgRed,
	Opt:  color.FgHiRed,
	Arb:  color.FgHiBlue,
	Sol:  color.FgHiMagenta,
	Base: color.FgBlue,
	Pol:  color.FgMagenta,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithDomain(domain uint32, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithDomain(domain uint32, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithDomain(domain uint32, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithDomain(domain uint32, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) InfoWithDomain(_ uint32, _ string, _ ...interface{}) {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) ErrorWithDomain(_ uint32, _ string, _ ...interface{}) {
}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) DebugWithDomain(_ uint32, _ string, _ ...interface{}) {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) NoticeWithDomain(_ uint32, _ string, _ ...interface{}) {
}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// formatMessage formats the log message with the appropriate log level, domain prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, domain Domain, format string) string {
	domainPrefix := domainPrefixes[domain]
	if l.enableColoring {
		domainPrefix = color.New(colors[domain]).Sprint(domainPrefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + domainPrefix + format
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, None, format), args...)
	}
}

func (l *StdLogger) InfoWithDomain(domain uint32, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := domainIDMap[domain]

	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, d, format), args...)
	}
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, None, format), args...)
	}
}

func (l *StdLogger) ErrorWithDomain(domain uint32, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := domainIDMap[domain]

	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, d, format), args...)
	}
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, None, format), args...)
	}
}

func (l *StdLogger) DebugWithDomain(domain uint32, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := domainIDMap[domain]

	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, d, format), args...)
	}
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, None, format), args...)
	}
}

func (l *StdLogger) NoticeWithDomain(domain uint32, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := domainIDMap[domain]

	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, d, format), args...)
	}
}
