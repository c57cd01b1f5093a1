package debug

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (bracket plan, photo count)
	LevelLive    = 2 // Live info (settings pushed, photos taken)
	LevelVerbose = 3 // Verbose (config tree lookups, transfers)
	LevelTrace   = 4 // Trace (gphoto2 invocations, GPIO)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (bracket range, total photo count)
// 2 = live info (shutter changes, photos taken)
// 3 = verbose (setting lookups, file transfers)
// 4 = trace (vendor tool calls, GPIO)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.TraceLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000000",
		})
	} else {
		logger = nil
	}
}

// SetOutput redirects log output (e.g. to also feed the web status stream).
// It is a no-op when debug output is off.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

func entry(scope string) *logrus.Entry {
	return logger.WithField("scope", scope)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		entry("info").Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Plan prints the shutter speeds a bracketing run will go through (level 1).
func Plan(speeds []string) {
	if level >= LevelInfo && logger != nil {
		entry("info").WithField("speeds", speeds).Infof("Bracketing: %d photos planned", len(speeds))
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		entry("info").Infof("  %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		entry("live").Infof(format, args...)
	}
}

// Shot prints a photo capture (level 2).
func Shot(index int, aperture, shutter, file string) {
	if level >= LevelLive && logger != nil {
		entry("live").WithFields(logrus.Fields{
			"aperture": aperture,
			"shutter":  shutter,
		}).Infof("Picture %d saved to %s", index, file)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		entry("verbose").Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		entry("verbose").Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		entry("verbose").Debugf("Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		entry("trace").Tracef(format, args...)
	}
}

// Command prints an external command invocation (level 4).
func Command(name string, args []string) {
	if level >= LevelTrace && logger != nil {
		entry("exec").WithField("args", args).Tracef("running %s", name)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		entry("gpio").Tracef("%s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		entry("error").WithError(err).Error("operation failed")
	}
}
