// Package logger writes leveled log entries grouped by subsystem area to a
// size-rotated file. Areas and the minimum level come from [Debug].
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrofunge/pkg/configuration"
)

// LogLevel defines the severity of a log entry
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return "UNKNOWN"
}

// LogArea groups log entries by subsystem
type LogArea string

const (
	AreaEngine    LogArea = "engine"
	AreaRunner    LogArea = "runner"
	AreaWebSocket LogArea = "websocket"
	AreaTerminal  LogArea = "terminal"
	AreaAuth      LogArea = "auth"
	AreaDatabase  LogArea = "database"
	AreaSecurity  LogArea = "security"
	AreaSession   LogArea = "session"
	AreaConfig    LogArea = "config"
	AreaGeneral   LogArea = "general"
)

var allAreas = []LogArea{
	AreaEngine, AreaRunner, AreaWebSocket, AreaTerminal, AreaAuth,
	AreaDatabase, AreaSecurity, AreaSession, AreaConfig, AreaGeneral,
}

// Logger filters entries by level and area and writes them to out
type Logger struct {
	level atomic.Int32
	areas map[LogArea]*atomic.Bool

	mu  sync.Mutex
	out io.Writer

	// mirror receives WARN and above in addition to out
	mirror *log.Logger
}

func newLogger(out io.Writer, level LogLevel) *Logger {
	l := &Logger{
		areas:  make(map[LogArea]*atomic.Bool, len(allAreas)),
		out:    out,
		mirror: log.Default(),
	}
	l.level.Store(int32(level))
	for _, area := range allAreas {
		l.areas[area] = new(atomic.Bool)
	}
	return l
}

var (
	globalLogger *Logger
	globalFile   *rotatingFile
	initOnce     sync.Once
)

// Initialize sets up the global logger from the [Debug] configuration
// section. Until it is called every logging function is a no-op.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		if !configuration.GetBool("Debug", "enable_debug_logging", true) {
			return
		}
		var file *rotatingFile
		file, err = openRotatingFile(
			configuration.GetString("Debug", "log_file", "retrofunge.log"),
			int64(configuration.GetInt("Debug", "max_log_size_mb", 10))*1024*1024,
			configuration.GetInt("Debug", "log_rotation_count", 3),
		)
		if err != nil {
			return
		}

		l := newLogger(file, parseLogLevel(configuration.GetString("Debug", "log_level", "INFO")))
		for _, area := range allAreas {
			l.areas[area].Store(configuration.GetBool("Debug", "log_"+string(area), false))
		}
		globalLogger, globalFile = l, file
	})
	return err
}

func (l *Logger) enabled(level LogLevel, area LogArea) bool {
	if int32(level) < l.level.Load() {
		return false
	}
	flag, ok := l.areas[area]
	return ok && flag.Load()
}

// log formats one entry. skip is the number of frames between the caller
// of the package function and this method.
func (l *Logger) log(skip int, level LogLevel, area LogArea, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	caller := "?"
	if _, file, line, ok := runtime.Caller(skip); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	tag := strings.ToUpper(string(area))

	entry := fmt.Sprintf("[%s] %s [%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, caller, tag, message)

	l.mu.Lock()
	io.WriteString(l.out, entry)
	l.mu.Unlock()

	if level >= WARN && l.mirror != nil {
		l.mirror.Printf("[%s] [%s] %s", level, tag, message)
	}
}

func logf(level LogLevel, area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.enabled(level, area) {
		l.log(3, level, area, format, args...)
	}
}

// Debug writes a DEBUG entry
func Debug(area LogArea, format string, args ...interface{}) { logf(DEBUG, area, format, args...) }

// Info writes an INFO entry
func Info(area LogArea, format string, args ...interface{}) { logf(INFO, area, format, args...) }

// Warn writes a WARN entry
func Warn(area LogArea, format string, args ...interface{}) { logf(WARN, area, format, args...) }

// Error writes an ERROR entry
func Error(area LogArea, format string, args ...interface{}) { logf(ERROR, area, format, args...) }

// Fatal writes a FATAL entry regardless of filters and exits
func Fatal(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil {
		l.log(2, FATAL, area, format, args...)
	}
	Close()
	log.Fatalf("[FATAL] [%s] %s", strings.ToUpper(string(area)), fmt.Sprintf(format, args...))
}

// Engine logging
func EngineDebug(format string, args ...interface{}) { logf(DEBUG, AreaEngine, format, args...) }
func EngineInfo(format string, args ...interface{})  { logf(INFO, AreaEngine, format, args...) }
func EngineWarn(format string, args ...interface{})  { logf(WARN, AreaEngine, format, args...) }

// Runner logging
func RunnerDebug(format string, args ...interface{}) { logf(DEBUG, AreaRunner, format, args...) }
func RunnerInfo(format string, args ...interface{})  { logf(INFO, AreaRunner, format, args...) }
func RunnerWarn(format string, args ...interface{})  { logf(WARN, AreaRunner, format, args...) }

// WebSocket logging
func WebSocketDebug(format string, args ...interface{}) { logf(DEBUG, AreaWebSocket, format, args...) }
func WebSocketInfo(format string, args ...interface{})  { logf(INFO, AreaWebSocket, format, args...) }
func WebSocketWarn(format string, args ...interface{})  { logf(WARN, AreaWebSocket, format, args...) }
func WebSocketError(format string, args ...interface{}) { logf(ERROR, AreaWebSocket, format, args...) }

// Auth logging
func AuthDebug(format string, args ...interface{}) { logf(DEBUG, AreaAuth, format, args...) }
func AuthInfo(format string, args ...interface{})  { logf(INFO, AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { logf(WARN, AreaAuth, format, args...) }
func AuthError(format string, args ...interface{}) { logf(ERROR, AreaAuth, format, args...) }

// Security logging
func SecurityInfo(format string, args ...interface{}) { logf(INFO, AreaSecurity, format, args...) }
func SecurityWarn(format string, args ...interface{}) { logf(WARN, AreaSecurity, format, args...) }

// Database logging
func DatabaseDebug(format string, args ...interface{}) { logf(DEBUG, AreaDatabase, format, args...) }
func DatabaseInfo(format string, args ...interface{})  { logf(INFO, AreaDatabase, format, args...) }
func DatabaseError(format string, args ...interface{}) { logf(ERROR, AreaDatabase, format, args...) }

// Config logging
func ConfigInfo(format string, args ...interface{}) { logf(INFO, AreaConfig, format, args...) }
func ConfigWarn(format string, args ...interface{}) { logf(WARN, AreaConfig, format, args...) }

// SetAreaEnabled switches logging for an area at runtime
func SetAreaEnabled(area LogArea, on bool) {
	if l := globalLogger; l != nil {
		if flag, ok := l.areas[area]; ok {
			flag.Store(on)
		}
	}
}

// AreaEnabled reports whether an area is logged
func AreaEnabled(area LogArea) bool {
	if l := globalLogger; l != nil {
		if flag, ok := l.areas[area]; ok {
			return flag.Load()
		}
	}
	return false
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	}
	return INFO
}

// Close closes the log file. Later entries are dropped.
func Close() {
	if globalFile != nil {
		globalFile.Close()
	}
}

// rotatingFile appends to path and shifts it to path.1 .. path.N once it
// grows past maxSize bytes.
type rotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	keep    int
	file    *os.File
	size    int64
}

func openRotatingFile(path string, maxSize int64, keep int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	rf := &rotatingFile{path: path, maxSize: maxSize, keep: keep}
	if err := rf.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open(mode int) error {
	file, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|mode, 0644)
	if err != nil {
		return err
	}
	rf.file = file
	rf.size = 0
	if stat, err := file.Stat(); err == nil {
		rf.size = stat.Size()
	}
	return nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return 0, os.ErrClosed
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	if err == nil && rf.maxSize > 0 && rf.size > rf.maxSize {
		err = rf.rotate()
	}
	return n, err
}

func (rf *rotatingFile) rotate() error {
	rf.file.Close()
	rf.file = nil

	if rf.keep > 0 {
		os.Remove(fmt.Sprintf("%s.%d", rf.path, rf.keep))
		for i := rf.keep - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", rf.path, i), fmt.Sprintf("%s.%d", rf.path, i+1))
		}
		os.Rename(rf.path, rf.path+".1")
	}
	return rf.open(os.O_TRUNC)
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
