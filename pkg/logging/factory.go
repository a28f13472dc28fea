package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Factory creates and manages loggers for different components
type Factory struct {
	config  *Config
	loggers map[string]*slog.Logger
	levels  map[string]*slog.LevelVar
	mu      sync.RWMutex

	handler          slog.Handler
	closer           io.Closer
	masker           *Masker
	metricsCollector *MetricsCollector
}

// NewFactory creates a new logger factory
func NewFactory(config *Config) (*Factory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	f := &Factory{
		config:  config,
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
	}

	if config.Masking.Enabled {
		f.masker = NewMasker(config.Masking)
	}

	writer, err := f.openOutput()
	if err != nil {
		return nil, err
	}
	f.handler = f.newHandler(writer)

	if config.Metrics.Enabled {
		f.metricsCollector = NewMetricsCollector(config.Metrics)
	}

	return f, nil
}

// NewFactoryWithWriter builds a factory that writes to w regardless of the output setting
func NewFactoryWithWriter(config *Config, w io.Writer) (*Factory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	f := &Factory{
		config:  config,
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
	}
	if config.Masking.Enabled {
		f.masker = NewMasker(config.Masking)
	}
	f.handler = f.newHandler(w)
	if config.Metrics.Enabled {
		f.metricsCollector = NewMetricsCollector(config.Metrics)
	}
	return f, nil
}

func (f *Factory) openOutput() (io.Writer, error) {
	switch f.config.Output {
	case LogOutputStdout:
		return os.Stdout, nil
	case LogOutputFile:
		file, err := os.OpenFile(f.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		f.closer = file
		return file, nil
	default:
		return os.Stderr, nil
	}
}

func (f *Factory) newHandler(w io.Writer) slog.Handler {
	// Component filtering happens in LevelHandler, so the base handler passes everything.
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: f.config.EnableCaller,
	}
	if f.masker != nil {
		opts.ReplaceAttr = f.masker.MaskAttr
	}
	if f.config.Format == LogFormatText {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// GetLogger returns a logger for a specific component
func (f *Factory) GetLogger(component string) *slog.Logger {
	f.mu.RLock()
	if logger, exists := f.loggers[component]; exists {
		f.mu.RUnlock()
		return logger
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(toSlogLevel(f.config.GetLevelForComponent(component)))
	f.levels[component] = levelVar

	logger := slog.New(NewLevelHandler(f.handler, levelVar)).With(
		slog.String("component", component),
	)
	f.loggers[component] = logger
	return logger
}

// UpdateLevel changes the level of a component, including loggers already handed out
func (f *Factory) UpdateLevel(component string, level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.config.ComponentLevels == nil {
		f.config.ComponentLevels = make(map[string]LogLevel)
	}
	f.config.ComponentLevels[component] = level

	if levelVar, ok := f.levels[component]; ok {
		levelVar.Set(toSlogLevel(level))
	}
}

// Level returns the effective level of a component
func (f *Factory) Level(component string) LogLevel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.GetLevelForComponent(component)
}

// GetMetricsCollector returns the metrics collector, nil when metrics are disabled
func (f *Factory) GetMetricsCollector() *MetricsCollector {
	return f.metricsCollector
}

// Close releases the log file, if any
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closer != nil {
		err := f.closer.Close()
		f.closer = nil
		return err
	}
	return nil
}

var (
	globalFactory *Factory
	globalMu      sync.RWMutex
)

// Initialize sets up the global logger factory
func Initialize(config *Config) error {
	factory, err := NewFactory(config)
	if err != nil {
		return err
	}
	return SetGlobalFactory(factory)
}

// SetGlobalFactory replaces the global factory, closing the previous one
func SetGlobalFactory(factory *Factory) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalFactory != nil {
		if err := globalFactory.Close(); err != nil {
			return fmt.Errorf("failed to close existing factory: %w", err)
		}
	}
	globalFactory = factory
	return nil
}

// GetGlobalLogger returns a logger from the global factory
func GetGlobalLogger(component string) *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		return slog.Default().With(slog.String("component", component))
	}
	return globalFactory.GetLogger(component)
}

// GetGlobalMetricsCollector returns the global metrics collector
func GetGlobalMetricsCollector() *MetricsCollector {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		return nil
	}
	return globalFactory.GetMetricsCollector()
}

// UpdateGlobalLevel dynamically updates the log level for a component
func UpdateGlobalLevel(component string, level LogLevel) {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		return
	}
	globalFactory.UpdateLevel(component, level)
}

// GlobalLevel reports the level of a component, info when logging is not initialized
func GlobalLevel(component string) LogLevel {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		return LogLevelInfo
	}
	return globalFactory.Level(component)
}

// Shutdown gracefully shuts down the global logging factory
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalFactory == nil {
		return nil
	}
	err := globalFactory.Close()
	globalFactory = nil
	return err
}
