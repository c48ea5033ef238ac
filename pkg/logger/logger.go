package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/wavecode/wavecode/pkg/redaction"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	logLevelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}

	currentLevel = INFO
	logger       *Logger
	once         sync.Once
	mu           sync.RWMutex

	// redactionEnabled controls whether log messages are redacted for privacy
	redactionEnabled = true
)

type Logger struct {
	file *os.File
}

// Context carries the swarm correlation IDs every orchestrator log line
// should be traceable by: which run, which task, and which worker
// produced it. It is threaded through from events.Bus (which has
// TaskID/AgentID on every SwarmEvent) and workerpool.Pool (which knows
// the task and worker spec at the point it spawns). Any field left
// empty is simply omitted from the entry.
type Context struct {
	RunID    string
	TaskID   string
	WorkerID string
}

type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

func init() {
	once.Do(func() {
		logger = &Logger{}
	})
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

func EnableFileLogging(filePath string) error {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if logger.file != nil {
		logger.file.Close()
	}

	logger.file = file
	log.Println("File logging enabled:", filePath)
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()

	if logger.file != nil {
		logger.file.Close()
		logger.file = nil
		log.Println("File logging disabled")
	}
}

func logMessageCtx(level LogLevel, component string, message string, ctx Context, fields map[string]any) {
	if level < currentLevel {
		return
	}

	// Apply redaction to message and fields for privacy
	if redactionEnabled {
		message = redaction.Redact(message)
		if fields != nil {
			fields = redaction.RedactFields(fields)
		}
	}

	entry := LogEntry{
		Level:     logLevelNames[level],
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: component,
		Message:   message,
		RunID:     ctx.RunID,
		TaskID:    ctx.TaskID,
		WorkerID:  ctx.WorkerID,
		Fields:    fields,
	}

	if pc, file, line, ok := runtime.Caller(2); ok {
		fn := runtime.FuncForPC(pc)
		if fn != nil {
			entry.Caller = fmt.Sprintf("%s:%d (%s)", file, line, fn.Name())
		}
	}

	if logger.file != nil {
		jsonData, err := json.Marshal(entry)
		if err == nil {
			logger.file.Write(append(jsonData, '\n'))
		}
	}

	var fieldStr string
	if len(fields) > 0 {
		fieldStr = " " + formatFields(fields)
	} else {
		fieldStr = ""
	}

	logLine := fmt.Sprintf("[%s] [%s]%s %s%s",
		entry.Timestamp,
		logLevelNames[level],
		formatComponent(component),
		message,
		fieldStr,
	)

	log.Println(logLine)

	if level == FATAL {
		os.Exit(1)
	}
}

func formatComponent(component string) string {
	if component == "" {
		return ""
	}
	return fmt.Sprintf(" %s:", component)
}

func formatFields(fields map[string]any) string {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

func Debug(message string) {
	logMessageCtx(DEBUG, "", message, Context{}, nil)
}

func DebugC(component string, message string) {
	logMessageCtx(DEBUG, component, message, Context{}, nil)
}

func DebugF(message string, fields map[string]any) {
	logMessageCtx(DEBUG, "", message, Context{}, fields)
}

func DebugCF(component string, message string, fields map[string]any) {
	logMessageCtx(DEBUG, component, message, Context{}, fields)
}

func Info(message string) {
	logMessageCtx(INFO, "", message, Context{}, nil)
}

func InfoC(component string, message string) {
	logMessageCtx(INFO, component, message, Context{}, nil)
}

func InfoF(message string, fields map[string]any) {
	logMessageCtx(INFO, "", message, Context{}, fields)
}

func InfoCF(component string, message string, fields map[string]any) {
	logMessageCtx(INFO, component, message, Context{}, fields)
}

// InfoCX is InfoCF with swarm correlation IDs attached as top-level
// entry fields rather than buried in the fields map.
func InfoCX(component string, message string, ctx Context, fields map[string]any) {
	logMessageCtx(INFO, component, message, ctx, fields)
}

func Warn(message string) {
	logMessageCtx(WARN, "", message, Context{}, nil)
}

func WarnC(component string, message string) {
	logMessageCtx(WARN, component, message, Context{}, nil)
}

func WarnF(message string, fields map[string]any) {
	logMessageCtx(WARN, "", message, Context{}, fields)
}

func WarnCF(component string, message string, fields map[string]any) {
	logMessageCtx(WARN, component, message, Context{}, fields)
}

// WarnCX is WarnCF with swarm correlation IDs attached as top-level
// entry fields rather than buried in the fields map.
func WarnCX(component string, message string, ctx Context, fields map[string]any) {
	logMessageCtx(WARN, component, message, ctx, fields)
}

func Error(message string) {
	logMessageCtx(ERROR, "", message, Context{}, nil)
}

func ErrorC(component string, message string) {
	logMessageCtx(ERROR, component, message, Context{}, nil)
}

func ErrorF(message string, fields map[string]any) {
	logMessageCtx(ERROR, "", message, Context{}, fields)
}

func ErrorCF(component string, message string, fields map[string]any) {
	logMessageCtx(ERROR, component, message, Context{}, fields)
}

// ErrorCX is ErrorCF with swarm correlation IDs attached as top-level
// entry fields rather than buried in the fields map.
func ErrorCX(component string, message string, ctx Context, fields map[string]any) {
	logMessageCtx(ERROR, component, message, ctx, fields)
}

func Fatal(message string) {
	logMessageCtx(FATAL, "", message, Context{}, nil)
}

func FatalC(component string, message string) {
	logMessageCtx(FATAL, component, message, Context{}, nil)
}

func FatalF(message string, fields map[string]any) {
	logMessageCtx(FATAL, "", message, Context{}, fields)
}

func FatalCF(component string, message string, fields map[string]any) {
	logMessageCtx(FATAL, component, message, Context{}, fields)
}

// SetRedactionEnabled enables or disables log redaction for privacy.
func SetRedactionEnabled(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	redactionEnabled = enabled
}

// IsRedactionEnabled returns whether log redaction is enabled.
func IsRedactionEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return redactionEnabled
}

// ConfigureRedaction sets up the global redaction configuration.
func ConfigureRedaction(config redaction.Config) {
	redaction.SetGlobalConfig(config)
}
