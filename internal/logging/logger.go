package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает имя уровня без учёта регистра.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Settings задаёт вывод для всех логгеров, создаваемых после InitDefaultLogger.
type Settings struct {
	ConsoleLevel LogLevel
	FileLevel    LogLevel
	FileEnabled  bool
	Dir          string
}

// DefaultSettings: только консоль, INFO и выше.
func DefaultSettings() Settings {
	return Settings{ConsoleLevel: INFO, FileLevel: DEBUG, Dir: "logs"}
}

// Logger представляет систему логирования одного компонента
type Logger struct {
	mu        sync.Mutex
	component string

	consoleLogger *log.Logger
	fileLogger    *log.Logger
	file          *os.File

	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	settingsMu      sync.RWMutex
	currentSettings = DefaultSettings()

	// Логгер по умолчанию; до InitDefaultLogger пишет только в stdout
	defaultLogger = &Logger{
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    ERROR,
	}
)

// NewLogger создаёт логгер компонента по текущим настройкам.
// Файл логов создаётся только при включённом FileEnabled.
func NewLogger(component string) (*Logger, error) {
	return newLogger(component, currentSettingsCopy(), os.Stdout)
}

func currentSettingsCopy() Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return currentSettings
}

func newLogger(component string, s Settings, console io.Writer) (*Logger, error) {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	l := &Logger{
		component:       component,
		consoleLogger:   log.New(console, prefix, log.LstdFlags),
		minConsoleLevel: s.ConsoleLevel,
		minFileLevel:    s.FileLevel,
	}
	if !s.FileEnabled {
		return l, nil
	}

	dir := s.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	name := component
	if name == "" {
		name = "server"
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}
	l.file = file
	l.fileLogger = log.New(file, prefix, log.LstdFlags)
	return l, nil
}

// InitDefaultLogger применяет настройки, пересоздаёт логгер по умолчанию
// и меняет уровни уже созданных логгеров компонентов.
func InitDefaultLogger(s Settings) error {
	settingsMu.Lock()
	currentSettings = s
	settingsMu.Unlock()
	GetLoggerManager().apply(s)

	l, err := newLogger("", s, os.Stdout)
	if err != nil {
		return err
	}
	old := defaultLogger
	defaultLogger = l
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Default возвращает логгер по умолчанию.
func Default() *Logger { return defaultLogger }

// SetOutput перенаправляет консольный вывод (используется в тестах).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleLogger.SetOutput(w)
}

// Component возвращает имя компонента.
func (l *Logger) Component() string { return l.component }

// Close закрывает файл логов, если он открыт
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Enabled сообщает, попадёт ли сообщение уровня level хоть в один вывод.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled(level)
}

func (l *Logger) enabled(level LogLevel) bool {
	if level >= l.minConsoleLevel {
		return true
	}
	return l.fileLogger != nil && level >= l.minFileLevel
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled(level) {
		return
	}
	message := fmt.Sprintf("[%s] %s", level.String(), fmt.Sprintf(format, args...))
	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// Trace логирует сообщение уровня TRACE в логгер по умолчанию
func Trace(format string, args ...interface{}) { defaultLogger.log(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) { defaultLogger.log(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) { defaultLogger.log(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) { defaultLogger.log(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) { defaultLogger.log(ERROR, format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogProtocolError логирует битый пакет вместе с его дампом
func (l *Logger) LogProtocolError(peer string, err error, data []byte) {
	l.Warn("Protocol error from %s: %v", peer, err)
	if len(data) > 0 && l.Enabled(DEBUG) {
		l.Debug("Raw data (%d bytes):\n%s", len(data), HexDump(data))
	}
}
