package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

const (
	defaultLogWidth = 100
	minLogWidth     = 40
	ellipsis        = "…"
)

func paint(s, code string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(method string, color bool) string {
	switch method {
	case "GET", "HEAD":
		return paint(method, ansiGreen, color)
	case "POST":
		return paint(method, ansiBlue, color)
	case "PUT", "PATCH":
		return paint(method, ansiYellow, color)
	case "DELETE":
		return paint(method, ansiRed, color)
	default:
		return paint(method, ansiMagenta, color)
	}
}

func colorizeStatusCode(status int, color bool) string {
	s := strconv.Itoa(status)
	switch {
	case status >= 500:
		return paint(s, ansiRed, color)
	case status >= 400:
		return paint(s, ansiYellow, color)
	case status >= 300:
		return paint(s, ansiCyan, color)
	default:
		return paint(s, ansiGreen, color)
	}
}

func colorizeStatusClass(class string, color bool) string {
	switch {
	case strings.HasPrefix(class, "5"):
		return paint(class, ansiRed, color)
	case strings.HasPrefix(class, "4"):
		return paint(class, ansiYellow, color)
	case strings.HasPrefix(class, "3"):
		return paint(class, ansiCyan, color)
	default:
		return paint(class, ansiGreen, color)
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, color)
	case ms >= 250:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiDim, color)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success":
		return paint(result, ansiGreen, color)
	case "redirect":
		return paint(result, ansiCyan, color)
	case "client_error":
		return paint(result, ansiYellow, color)
	case "server_error":
		return paint(result, ansiRed, color)
	default:
		return result
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > 1<<63-1 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// stripANSI removes CSI escape sequences.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// truncateVisual cuts s to at most width visible runes, ending in an ellipsis.
// Escape codes are dropped from truncated segments.
func truncateVisual(s string, width int) string {
	if visualLen(s) <= width {
		return s
	}
	if width <= 1 {
		return ellipsis
	}
	plain := []rune(stripANSI(s))
	return string(plain[:width-1]) + ellipsis
}

// wrapSegments greedily packs segments into lines no wider than width.
// Continuation lines start with indent; a segment that alone exceeds the
// line is truncated.
func wrapSegments(segments []string, sep string, width int, indent string) []string {
	if width < minLogWidth {
		width = minLogWidth
	}
	sepLen := visualLen(sep)

	var (
		lines  []string
		cur    strings.Builder
		curLen int
	)
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		segLen := visualLen(seg)
		if curLen > 0 {
			if curLen+sepLen+segLen <= width {
				cur.WriteString(sep)
				cur.WriteString(seg)
				curLen += sepLen + segLen
				continue
			}
			lines = append(lines, cur.String())
			cur.Reset()
		}

		prefix := ""
		if len(lines) > 0 {
			prefix = indent
		}
		seg = truncateVisual(seg, width-visualLen(prefix))
		cur.WriteString(prefix)
		cur.WriteString(seg)
		curLen = visualLen(prefix) + visualLen(seg)
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// terminalWidth prefers HZ_LOG_WIDTH, then COLUMNS. Values narrower than
// minLogWidth are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"HZ_LOG_WIDTH", "COLUMNS"} {
		n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
		if err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}
