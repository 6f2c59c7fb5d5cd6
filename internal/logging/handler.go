package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// field is an attribute flattened to a dotted key, groups included.
type field struct {
	key string
	val slog.Value
}

// handler backs every logger handed out by this package. Stdout gets records
// through a stock text or JSON handler; the journal and the ring buffer get
// them flattened to dotted keys.
type handler struct {
	level   slog.Leveler
	module  string
	stdout  slog.Handler // nil when stdout goes nowhere
	journal bool
	ring    *RingBuffer
	fields  []field
	groups  []string
}

func newHandler(module, format string, level slog.Leveler, ring *RingBuffer) *handler {
	h := &handler{level: level, module: module, journal: IsJournalAvailable(), ring: ring}
	if stdoutUsable() {
		opts := &slog.HandlerOptions{Level: level}
		if format == "json" {
			h.stdout = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			h.stdout = slog.NewTextHandler(os.Stdout, opts)
		}
		if module != "" {
			h.stdout = h.stdout.WithAttrs([]slog.Attr{slog.String("module", module)})
		}
	}
	return h
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.stdout != nil {
		err = h.stdout.Handle(ctx, r)
	}
	if !h.journal && h.ring == nil {
		return err
	}

	fields := slices.Clip(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.groups, a)
		return true
	})
	if h.journal {
		err = errors.Join(err, sendJournal(r, h.module, fields))
	}
	if h.ring != nil {
		h.ring.Write(newLogEntry(r, h.module, fields))
	}
	return err
}

// WithAttrs treats a top-level "module" attribute as the logger's module.
func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		if a.Key == "module" && len(h.groups) == 0 {
			c.module = a.Value.String()
			continue
		}
		c.fields = appendField(c.fields, h.groups, a)
	}
	if c.stdout != nil {
		c.stdout = c.stdout.WithAttrs(attrs)
	}
	return c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(slices.Clip(h.groups), name)
	if c.stdout != nil {
		c.stdout = c.stdout.WithGroup(name)
	}
	return c
}

func (h *handler) clone() *handler {
	c := *h
	c.fields = slices.Clip(h.fields)
	return &c
}

func appendField(dst []field, groups []string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = appendField(dst, inner, ga)
		}
		return dst
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, val: a.Value})
}

func newLogEntry(r slog.Record, module string, fields []field) LogEntry {
	if module == "" {
		module = "app"
	}
	e := LogEntry{Timestamp: r.Time, Level: levelName(r.Level), Module: module, Message: r.Message}
	if len(fields) > 0 {
		e.Attributes = make(map[string]any, len(fields))
		for _, f := range fields {
			e.Attributes[f.key] = entryValue(f.val)
		}
	}
	return e
}

// entryValue converts v to something that marshals to readable JSON.
func entryValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// stdoutUsable reports whether stdout leads to a terminal, pipe, socket or
// file rather than nowhere.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}
