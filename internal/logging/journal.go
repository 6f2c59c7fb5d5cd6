package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by the service.
const SyslogIdentifier = "facegate"

// IsJournalAvailable reports whether the systemd journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}

func sendJournal(r slog.Record, module string, fields []field) error {
	vars := make(map[string]string, len(fields)+2)
	vars["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	if module != "" {
		vars["MODULE"] = module
	}
	for _, f := range fields {
		vars[journalKey(f.key)] = journalValue(f.val)
	}
	if err := journal.Send(r.Message, journalPriority(r.Level), vars); err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		return err
	}
	return nil
}

// journalKey maps a dotted attribute key to a journal field name: upper
// case letters, digits and underscores, not starting with an underscore.
func journalKey(key string) string {
	k := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	k = strings.TrimLeft(k, "_")
	if k == "" {
		return "FIELD"
	}
	return k
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
