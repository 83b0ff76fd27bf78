package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// LoggerManager хранит логгеры компонентов. Один логгер на имя.
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	l, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if ok {
		return l, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l, ok := lm.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger for %s: %w", component, err)
	}
	lm.loggers[component] = l
	return l, nil
}

// MustGetLogger не возвращает ошибок: если файл логов не открылся,
// компонент пишет только в консоль.
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	l, err := lm.GetLogger(component)
	if err == nil {
		return l
	}
	s := currentSettingsCopy()
	s.FileEnabled = false
	l, _ = newLogger(component, s, defaultLogger.consoleLogger.Writer())
	l.Warn("file sink disabled: %v", err)

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if existing, ok := lm.loggers[component]; ok {
		return existing
	}
	lm.loggers[component] = l
	return l
}

// apply выставляет уровни уже созданным логгерам. Файлы не переоткрываются:
// FileEnabled действует на логгеры, созданные после InitDefaultLogger.
func (lm *LoggerManager) apply(s Settings) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	for _, l := range lm.loggers {
		l.mu.Lock()
		l.minConsoleLevel = s.ConsoleLevel
		l.minFileLevel = s.FileLevel
		l.mu.Unlock()
	}
}

// CloseAll закрывает файлы всех логгеров, включая логгер по умолчанию.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, l := range lm.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger %s: %w", component, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	if err := defaultLogger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ListComponents возвращает отсортированный список компонентов
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// SetLogLevel меняет уровни одного компонента.
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	lm.mu.RLock()
	l, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("logger for component %s not found", component)
	}

	l.mu.Lock()
	l.minConsoleLevel = consoleLevel
	l.minFileLevel = fileLevel
	l.mu.Unlock()
	return nil
}

// GetComponentLogger - логгер компонента из глобального менеджера.
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger { return GetComponentLogger("network") }

func GetServerLogger() *Logger { return GetComponentLogger("server") }

func GetMapLogger() *Logger { return GetComponentLogger("map") }

func GetClientLogger() *Logger { return GetComponentLogger("client") }
