package ffmpeg

import "strings"

// ParseLogLevel extracts the level from a line written with -loglevel level+...
// Lines look like "[warning] message" or "[component @ 0x...] [error] message".
// The level tag is stripped; a component prefix is kept in the message.
func ParseLogLevel(line string) (level, msg string) {
	first, rest, ok := cutBracket(line)
	if !ok {
		return "info", line
	}
	if isLogLevel(first) {
		return first, rest
	}

	second, tail, ok := cutBracket(rest)
	if ok && isLogLevel(second) {
		return second, "[" + first + "] " + tail
	}
	return "info", line
}

// cutBracket splits "[tag] rest" into tag and rest.
func cutBracket(s string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	tag, rest, ok = strings.Cut(s[1:], "] ")
	if !ok {
		return "", s, false
	}
	return tag, rest, true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
