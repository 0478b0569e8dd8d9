package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

func init() {
	switch strings.ToUpper(os.Getenv("POOLSTR_LOG")) {
	case "OFF", "FALSE", "0":
		SetLogLevel(Off)
	case "FATAL":
		SetLogLevel(Fatal)
	case "ERROR":
		SetLogLevel(Error)
	case "WARN":
		SetLogLevel(Warn)
	case "DEBUG", "TRUE", "1":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	default:
		SetLogLevel(Info)
	}
}

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Printf surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a closure so the formatting cost is skipped when the level
	// is not being printed
	C func(closure func() string)
	// Chk prints if there is an error and returns true if it was non-nil
	Chk func(e error) bool
	// Err constructs an error via fmt.Errorf and logs it on the way out
	Err          func(format string, a ...interface{}) error
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32
	// LevelSpecs specifies the id, short name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

// Log is a set of log printers for the various levels.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the set of Chk printers of a Log, used to gate on errors:
//
//	if chk.E(err) { return }
type Check struct {
	F, E, W, I, D, T Chk
}

func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: getPrinter(Fatal, writer),
		E: getPrinter(Error, writer),
		W: getPrinter(Warn, writer),
		I: getPrinter(Info, writer),
		D: getPrinter(Debug, writer),
		T: getPrinter(Trace, writer),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

func GetStd() (l *Log, c *Check) { return New(os.Stderr) }

func SetLogLevel(l int) {
	currentLevel.Store(int32(l))
}

func GetLogLevel() (l int) {
	return int(currentLevel.Load())
}

func joinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func tsShort() string {
	return time.Now().Format("150405.000")
}

func printIt(level int32, writer io.Writer, text string) {
	if int(level) > GetLogLevel() {
		return
	}
	fmt.Fprintf(writer, "%s %s %s %s\n",
		tsShort(),
		LevelSpecs[level].Colorizer(LevelSpecs[level].Name),
		text,
		GetLoc(3),
	)
}

func getPrinter(l int32, writer io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			printIt(l, writer, joinStrings(a...))
		},
		F: func(format string, a ...interface{}) {
			printIt(l, writer, fmt.Sprintf(format, a...))
		},
		S: func(a ...interface{}) {
			printIt(l, writer, spew.Sdump(a...))
		},
		C: func(closure func() string) {
			if int(l) > GetLogLevel() {
				return
			}
			printIt(l, writer, closure())
		},
		Chk: func(e error) bool {
			if e != nil {
				printIt(l, writer, e.Error())
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			printIt(l, writer, fmt.Sprintf(format, a...))
			return fmt.Errorf(format, a...)
		},
	}
}

// GetLoc returns the file:line of the caller at the given stack depth.
func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(file, ":", line)
	return
}
