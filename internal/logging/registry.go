package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// registry keeps track of all instantiated component loggers so a single
// CLASPER_LOG_LEVEL string can retune them all at once.
type registry struct {
	loggers  map[string]*Logger
	defLevel zapcore.Level
}

var (
	reg      *registry
	regMu    sync.RWMutex
	regOnce  sync.Once
)

func resetForTesting() {
	regMu.Lock()
	defer regMu.Unlock()
	reg = nil
	regOnce = sync.Once{}
}

// GetLogger returns the (lazily created) logger for the named component.
func GetLogger(component string) *Logger {
	regOnce.Do(initRegistry)

	regMu.RLock()
	if l := reg.loggers[component]; l != nil {
		regMu.RUnlock()
		return l
	}
	regMu.RUnlock()

	regMu.Lock()
	defer regMu.Unlock()

	if l := reg.loggers[component]; l != nil {
		return l
	}

	l := newLogger(component)
	l.SetLevel(reg.defLevel)
	reg.loggers[component] = l
	return l
}

func initRegistry() {
	reg = &registry{
		loggers:  make(map[string]*Logger),
		defLevel: zapcore.InfoLevel,
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// UpdateLogLevels parses a "component:level;component2:level2;.:level" string
// (the "." entry sets the default for components not explicitly listed) and
// applies it to the registry.
func UpdateLogLevels(spec string) error {
	regOnce.Do(initRegistry)

	spec = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, spec)

	regMu.Lock()
	defer regMu.Unlock()

	explicit := make(map[string]bool)
	var def zapcore.Level
	hasDefault := false

	for _, entry := range strings.Split(spec, ";") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		component, levelStr := parts[0], parts[1]
		level := parseLevel(levelStr)

		if component == "." {
			def = level
			hasDefault = true
			continue
		}

		explicit[component] = true
		l := reg.loggers[component]
		if l == nil {
			l = newLogger(component)
			reg.loggers[component] = l
		}
		l.SetLevel(level)
	}

	if hasDefault {
		reg.defLevel = def
		for component, l := range reg.loggers {
			if !explicit[component] {
				l.SetLevel(def)
			}
		}
	}

	return nil
}
