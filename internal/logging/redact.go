package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/codemage/internal/config"
)

const redacted = "[REDACTED]"

// Secret creates a field for config.Secret showing only its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with the value replaced by its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder hides credential fields and API keys that leak into
// values, such as a model error echoing an Authorization header.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]bool
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base. With redaction disabled base is returned
// wrapped but untouched.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	e := &RedactingEncoder{Encoder: base}
	if !cfg.Enabled {
		return e, nil
	}

	e.keys = make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		e.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

func (e *RedactingEncoder) active() bool {
	return len(e.keys) > 0 || len(e.patterns) > 0
}

func (e *RedactingEncoder) sensitive(key string) bool {
	return e.keys[strings.ToLower(key)]
}

// scrub returns the value to encode for key and whether it changed.
// Values already masked by RedactedString keep their length hint.
func (e *RedactingEncoder) scrub(key, val string) (string, bool) {
	if strings.HasPrefix(val, "[REDACTED") {
		return val, false
	}
	if e.sensitive(key) {
		return redacted, true
	}
	out := val
	for _, re := range e.patterns {
		out = re.ReplaceAllString(out, redacted)
	}
	return out, out != val
}

func (e *RedactingEncoder) AddString(key, val string) {
	out, _ := e.scrub(key, val)
	e.Encoder.AddString(key, out)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry scrubs the message and per-call fields. The wrapped encoder
// writes those into its own clone, bypassing the Add* overrides, which
// therefore only see fields bound via With.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if !e.active() {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	ent.Message, _ = e.scrub("", ent.Message)

	clean := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		clean[i] = f
		switch {
		case f.Type == zapcore.StringType:
			if out, changed := e.scrub(f.Key, f.String); changed {
				clean[i] = zap.String(f.Key, out)
			}
		case e.sensitive(f.Key):
			clean[i] = zap.String(f.Key, redacted)
		}
	}
	return e.Encoder.EncodeEntry(ent, clean)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}
