package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the console and OTEL outputs and applies sampling.
// Both outputs see redacted fields.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	redactor, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		enc := &RedactingEncoder{Encoder: newEncoder(cfg.Format), redactor: redactor}
		cores = append(cores, zapcore.NewCore(enc, consoleWriter(cfg), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		bridge := otelzap.NewCore("github.com/fyrsmithlabs/ragstore",
			otelzap.WithLoggerProvider(otelProvider),
		)
		cores = append(cores, &redactingCore{
			Core:     &levelFilterCore{Core: bridge, minLevel: cfg.Level, hasMin: true},
			redactor: redactor,
		})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	return newSampledCore(core, cfg.Sampling), nil
}

// redactingCore scrubs fields before handing them to a core that does not
// go through an encoder, such as the OTEL bridge.
type redactingCore struct {
	zapcore.Core
	redactor *redactor
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redactor.fields(fields)), redactor: c.redactor}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.redactor.message(e.Message)
	return c.Core.Write(e, c.redactor.fields(fields))
}
