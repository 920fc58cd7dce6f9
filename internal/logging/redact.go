package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[REDACTED]"

// Secret creates a field for a config.Secret that shows only its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with the value replaced by its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactor holds compiled redaction rules. A nil redactor passes everything.
type redactor struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r := &redactor{keys: make(map[string]bool, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) key(k string) bool {
	return r != nil && r.keys[strings.ToLower(k)]
}

func (r *redactor) value(v string) bool {
	if r == nil {
		return false
	}
	for _, re := range r.patterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func (r *redactor) message(msg string) string {
	if r == nil {
		return msg
	}
	for _, re := range r.patterns {
		msg = re.ReplaceAllString(msg, redactedValue)
	}
	return msg
}

// fields returns fields with sensitive entries replaced. The input slice is
// left untouched.
func (r *redactor) fields(fields []zapcore.Field) []zapcore.Field {
	if r == nil {
		return fields
	}
	var out []zapcore.Field
	for i, f := range fields {
		repl, changed := r.field(f)
		if !changed {
			if out != nil {
				out = append(out, f)
			}
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, i, len(fields))
			copy(out, fields[:i])
		}
		out = append(out, repl)
	}
	if out == nil {
		return fields
	}
	return out
}

func (r *redactor) field(f zapcore.Field) (zapcore.Field, bool) {
	if r.key(f.Key) {
		return zap.String(f.Key, redactedValue), true
	}
	if f.Type == zapcore.StringType && r.value(f.String) {
		return zap.String(f.Key, "[REDACTED:pattern]"), true
	}
	return f, false
}

// RedactingEncoder wraps an encoder so sensitive keys and values never reach
// the output. Fields attached with Logger.With arrive through the Add
// methods; fields given at the call site arrive through EncodeEntry.
type RedactingEncoder struct {
	zapcore.Encoder
	redactor *redactor
}

// NewRedactingEncoder wraps base with the given rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, redactor: r}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.redactor.key(key):
		e.Encoder.AddString(key, redactedValue)
	case e.redactor.value(val):
		e.Encoder.AddString(key, "[REDACTED:pattern]")
	default:
		e.Encoder.AddString(key, val)
	}
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.redactor.key(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.redactor.key(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.redactor.key(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.redactor.key(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.redactor.key(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), redactor: e.redactor}
}

func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.redactor.message(ent.Message)
	return e.Encoder.EncodeEntry(ent, e.redactor.fields(fields))
}
