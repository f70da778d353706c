package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders records as indented console lines for interactive
// daemon runs. Info lines carry a curated field list below the header while
// debug lines dump every attribute.
type prettyHandler struct {
	mu        sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	seenInfo  map[string]map[string]string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{writer: w, level: lvl, addSource: addSource, seenInfo: make(map[string]map[string]string)}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// lineHeader carries the fixed fields every console line starts with.
type lineHeader struct {
	ts        time.Time
	level     slog.Level
	component string
	trigger   string
	sessionID string
	phase     string
	message   string
	source    *slog.Source
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	header, fields := splitHeaderFields(kvs)
	header.ts = record.Time
	if header.ts.IsZero() {
		header.ts = time.Now()
	}
	header.level = record.Level
	header.message = strings.TrimSpace(record.Message)
	if header.message == "" {
		header.message = "(no message)"
	}
	if h.addSource {
		header.source = record.Source()
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(fields)*32)

	h.mu.Lock()
	defer h.mu.Unlock()
	if record.Level < slog.LevelInfo {
		h.writeDebugLine(&buf, header, collapseDuplicateKeys(kvs))
	} else {
		h.writeInfoLine(&buf, header, collapseDuplicateKeys(fields))
	}
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// splitHeaderFields pulls the identity fields out of the attribute list. The
// component attribute is consumed; session, phase, and trigger stay in the
// returned list so the info renderer can still show them.
func splitHeaderFields(kvs []kv) (lineHeader, []kv) {
	var header lineHeader
	rest := make([]kv, 0, len(kvs))
	for _, entry := range kvs {
		switch entry.key {
		case FieldComponent:
			if header.component == "" {
				header.component = attrString(entry.value)
			}
			continue
		case FieldSessionID:
			if header.sessionID == "" {
				header.sessionID = attrString(entry.value)
			}
		case FieldPhase:
			if header.phase == "" {
				header.phase = attrString(entry.value)
			}
		case FieldTrigger:
			if header.trigger == "" {
				header.trigger = attrString(entry.value)
			}
		}
		rest = append(rest, entry)
	}
	return header, rest
}

func (h *prettyHandler) writeInfoLine(buf *bytes.Buffer, header lineHeader, attrs []kv) {
	writeLineHeader(buf, header)
	buf.WriteByte('\n')
	fields, hidden := selectInfoFields(attrs, 0, true)
	fields = h.dropRepeatedFields(infoSummaryKey(header.component, header.sessionID, attrs), fields, header.level)
	for _, field := range fields {
		buf.WriteString("    - ")
		buf.WriteString(field.label)
		buf.WriteString(": ")
		buf.WriteString(field.value)
		buf.WriteByte('\n')
	}
	if hidden > 0 {
		buf.WriteString("    + ")
		buf.WriteString(strconv.Itoa(hidden))
		if hidden == 1 {
			buf.WriteString(" more field hidden\n")
		} else {
			buf.WriteString(" more fields hidden\n")
		}
	}
}

func (h *prettyHandler) writeDebugLine(buf *bytes.Buffer, header lineHeader, attrs []kv) {
	writeLineHeader(buf, header)
	buf.WriteByte('\n')
	for _, entry := range attrs {
		if entry.key == "" {
			continue
		}
		buf.WriteString("    ")
		buf.WriteString(entry.key)
		buf.WriteString(": ")
		buf.WriteString(formatValue(entry.value))
		buf.WriteByte('\n')
	}
}

func writeLineHeader(buf *bytes.Buffer, header lineHeader) {
	buf.WriteString(formatTimestamp(header.ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(header.level))
	if header.component != "" {
		buf.WriteString(" [")
		buf.WriteString(header.component)
		buf.WriteByte(']')
	}
	if subject := composeSubject(header.trigger, header.sessionID, header.phase); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	if header.message != "" {
		buf.WriteString(" - ")
		buf.WriteString(header.message)
	}
	if src := header.source; src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
}

// composeSubject renders the session identity portion of a console line, e.g.
// "Manual · Session 4f3c2a (download)". Session IDs are shortened to the first
// uuid segment to keep lines scannable.
func composeSubject(trigger, sessionID, phase string) string {
	trigger = strings.TrimSpace(trigger)
	sessionID = shortSessionID(strings.TrimSpace(sessionID))
	phase = strings.TrimSpace(phase)
	parts := make([]string, 0, 2)
	if trigger != "" {
		parts = append(parts, titleWord(trigger))
	}
	switch {
	case sessionID != "" && phase != "":
		parts = append(parts, "Session "+sessionID+" ("+phase+")")
	case sessionID != "":
		parts = append(parts, "Session "+sessionID)
	case phase != "":
		parts = append(parts, phase)
	}
	return strings.Join(parts, " · ")
}

func shortSessionID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}

// titleWord uppercases the first byte and lowercases the rest. Trigger names
// are short ascii identifiers, so no unicode handling is needed.
func titleWord(word string) string {
	if len(word) < 2 {
		return strings.ToUpper(word)
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}

// dropRepeatedFields suppresses info fields whose value has not changed since
// the previous record with the same summary key. Warn and error records
// refresh the cache but always print their fields.
func (h *prettyHandler) dropRepeatedFields(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	seen, ok := h.seenInfo[key]
	if !ok {
		seen = make(map[string]string)
		h.seenInfo[key] = seen
	}
	if level > slog.LevelInfo {
		for _, field := range fields {
			seen[field.label] = field.value
		}
		return fields
	}
	kept := make([]infoField, 0, len(fields))
	for _, field := range fields {
		if prev, ok := seen[field.label]; ok && prev == field.value {
			continue
		}
		seen[field.label] = field.value
		kept = append(kept, field)
	}
	return kept
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

// clone shares the writer, level, and seen-field cache so derived loggers
// keep suppressing fields their parent already printed.
func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		seenInfo:  h.seenInfo,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

// kv is a flattened attribute with group prefixes folded into the key.
type kv struct {
	key   string
	value slog.Value
}

// collapseDuplicateKeys keeps one entry per key. The first occurrence fixes
// the position and later occurrences overwrite the value, so ordering stays
// stable while the freshest value wins.
func collapseDuplicateKeys(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	position := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := position[attr.key]; ok {
			out[pos].value = attr.value
			continue
		}
		position[attr.key] = len(out)
		out = append(out, attr)
	}
	return out
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		nested := prefix
		if attr.Key != "" {
			nested = append(append(make([]string, 0, len(prefix)+1), prefix...), attr.Key)
		}
		flattenAttrs(dst, nested, attr.Value.Group())
		return
	}
	*dst = append(*dst, kv{key: joinKey(prefix, attr.Key), value: attr.Value})
}

// joinKey dot-joins group prefixes with the attribute key. An empty key inside
// a group collapses to the prefix alone.
func joinKey(prefix []string, key string) string {
	if len(prefix) == 0 {
		return key
	}
	if key == "" {
		return strings.Join(prefix, ".")
	}
	return strings.Join(prefix, ".") + "." + key
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
