package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfg = zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stdout"},
	}
	leveler = &levelSetter{
		levelers:     make(map[string]zap.AtomicLevel),
		defaultLevel: zap.InfoLevel,
	}
	output = newSink(zapcore.Lock(os.Stdout))
)

// sink holds the encoder and writer every named logger writes through, so a
// Configure call reaches loggers that already exist.
type sink struct {
	mu       sync.RWMutex
	encoding string
	out      zapcore.WriteSyncer
	core     zapcore.Core
}

func newSink(out zapcore.WriteSyncer) *sink {
	s := &sink{encoding: cfg.Encoding, out: out}
	s.rebuild()
	return s
}

// rebuild must be called with mu held. Levels are checked by each logger's
// own core, so the shared core accepts everything.
func (s *sink) rebuild() {
	var enc zapcore.Encoder
	if s.encoding == "json" {
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}
	s.core = zapcore.NewCore(enc, s.out, zap.DebugLevel)
}

func (s *sink) setEncoding(encoding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding = encoding
	s.rebuild()
}

// setOutput swaps the writer and returns the previous one.
func (s *sink) setOutput(out zapcore.WriteSyncer) zapcore.WriteSyncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.out
	s.out = out
	s.rebuild()
	return prev
}

func (s *sink) current() zapcore.Core {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.core
}

// namedCore filters by its logger's level and writes through the shared sink.
type namedCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

func (c *namedCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &namedCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *namedCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *namedCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	return output.current().Write(ent, all)
}

func (c *namedCore) Sync() error {
	return output.current().Sync()
}

// Leveler changes the level of named loggers at runtime, including loggers
// that were created before the call.
type Leveler interface {
	SetLevel(name string, level zapcore.Level)
	GetLevel(name string) zapcore.Level
	SetDefaultLevel(level zapcore.Level)
}

type levelSetter struct {
	levelers     map[string]zap.AtomicLevel
	overrides    map[string]bool
	defaultLevel zapcore.Level
	mu           sync.RWMutex
}

var _ Leveler = (*levelSetter)(nil)

func GetLeveler() Leveler {
	return leveler
}

// SetLevel pins a named logger to level. Pinned loggers ignore later
// SetDefaultLevel calls.
func (lw *levelSetter) SetLevel(name string, level zapcore.Level) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.overrides == nil {
		lw.overrides = make(map[string]bool)
	}
	lw.overrides[name] = true
	lw.levelFor(name).SetLevel(level)
}

func (lw *levelSetter) GetLevel(name string) zapcore.Level {
	lw.mu.RLock()
	defer lw.mu.RUnlock()

	if l, ok := lw.levelers[name]; ok {
		return l.Level()
	}

	return lw.defaultLevel
}

func (lw *levelSetter) SetDefaultLevel(level zapcore.Level) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.defaultLevel = level
	for name, l := range lw.levelers {
		if lw.overrides[name] {
			continue
		}
		l.SetLevel(level)
	}
}

// levelFor must be called with mu held.
func (lw *levelSetter) levelFor(name string) zap.AtomicLevel {
	if l, ok := lw.levelers[name]; ok {
		return l
	}
	l := zap.NewAtomicLevelAt(lw.defaultLevel)
	lw.levelers[name] = l
	return l
}

func (lw *levelSetter) register(name string) zap.AtomicLevel {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.levelFor(name)
}

// Configure applies process-wide settings: the default level, per logger
// overrides (name -> level) and the encoding ("console" or "json"). All
// loggers pick up the changes, including those created before the call.
func Configure(defaultLevel string, levels map[string]string, encoding string) error {
	lvl, err := zapcore.ParseLevel(defaultLevel)
	if err != nil {
		return err
	}
	leveler.SetDefaultLevel(lvl)

	for name, level := range levels {
		l, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		leveler.SetLevel(name, l)
	}

	if encoding == "json" || encoding == "console" {
		output.setEncoding(encoding)
	}
	return nil
}

func New(name string) *zap.SugaredLogger {
	core := &namedCore{LevelEnabler: leveler.register(name)}
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.PanicLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stdout)),
	).Named(name).Sugar()
}
