// internal/format/formatter.go
package format

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	xunicode "golang.org/x/text/encoding/unicode"

	"comm-debugger/internal/model"
)

const (
	timeLayout   = "15:04:05"
	hexMarker    = "====== Hex: "
	defaultCodec = "utf-8"
)

// Options control how one batch of events is rendered. They are supplied per
// call and never stored on a channel.
type Options struct {
	HexMode       bool   `json:"hex" form:"hex"`
	FilterKeyword string `json:"filter" form:"filter"`
	Encoding      string `json:"encoding" form:"encoding"`
}

// Format renders a transfer as a log line. ok is false when the filter
// keyword suppresses the event. The event payload is never modified.
func Format(ev model.TransferEvent, opts Options) (string, bool) {
	text := DecodeText(ev.Payload, opts.Encoding)

	if opts.FilterKeyword != "" && !strings.Contains(text, opts.FilterKeyword) {
		return "", false
	}

	verb := "Send to"
	if ev.Direction == model.DirectionReceived {
		verb = "Recv from"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s <%s>%q - %d Bytes]: %s",
		stamp(ev.Timestamp), verb, ev.TransportLabel, ev.Peer, ev.Size(), text)

	if opts.HexMode {
		b.WriteString("\n")
		b.WriteString(hexMarker)
		b.WriteString(HexString(ev.Payload))
	}
	return b.String(), true
}

// FormatError renders an error line. Errors are never filtered.
func FormatError(ev model.ErrorEvent) string {
	target := ""
	if ev.Peer != "" {
		target = fmt.Sprintf("%q", ev.Peer)
	}
	return fmt.Sprintf("%s [Error %s/%s <%s>%s] %s: %s",
		stamp(ev.Timestamp), ev.Op, ev.Severity, ev.TransportLabel, target, ev.Code, ev.Description)
}

// FormatState renders an informational line
func FormatState(ev model.StateEvent) string {
	target := ""
	if ev.Peer != "" {
		target = fmt.Sprintf("%q", ev.Peer)
	}
	return fmt.Sprintf("%s [<%s>%s %s] %s",
		stamp(ev.Timestamp), ev.TransportLabel, target, ev.State, ev.Message)
}

// FormatEvent renders any envelope. Only transfers are subject to the filter.
func FormatEvent(ev model.Event, opts Options) (string, bool) {
	switch ev.Type {
	case model.EventTransfer:
		if ev.Transfer == nil {
			return "", false
		}
		return Format(*ev.Transfer, opts)
	case model.EventError:
		if ev.Error == nil {
			return "", false
		}
		return FormatError(*ev.Error), true
	case model.EventState:
		if ev.State == nil {
			return "", false
		}
		return FormatState(*ev.State), true
	default:
		return "", false
	}
}

// HexString renders bytes as upper-case pairs separated by single spaces
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// ParseHex converts operator input such as "0A FF", "0aff", "0x0A,0xFF" or
// "0A-FF" into bytes.
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ':' || r == '-'
	})

	var digits strings.Builder
	for _, field := range fields {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		if len(fields) > 1 && len(field)%2 == 1 {
			field = "0" + field
		}
		digits.WriteString(field)
	}

	data, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return data, nil
}

// DecodeText interprets payload bytes in the named charset. Invalid sequences
// become U+FFFD; unknown charsets fall back to UTF-8.
func DecodeText(data []byte, charset string) string {
	enc := lookup(charset)
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

// EncodeText converts operator text into payload bytes in the named charset
func EncodeText(text, charset string) ([]byte, error) {
	if err := ValidateEncoding(charset); err != nil {
		return nil, err
	}
	out, err := lookup(charset).NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("cannot encode text as %s: %w", charset, err)
	}
	return out, nil
}

// ValidateEncoding reports whether charset names a known encoding
func ValidateEncoding(charset string) error {
	if charset == "" {
		return nil
	}
	if _, err := htmlindex.Get(charset); err != nil {
		return fmt.Errorf("unknown encoding %q: %w", charset, err)
	}
	return nil
}

func lookup(charset string) encoding.Encoding {
	if charset == "" {
		charset = defaultCodec
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return xunicode.UTF8
	}
	return enc
}

func stamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.Format(timeLayout)
}
