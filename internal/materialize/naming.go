package materialize

import (
	"fmt"
	"strings"
	"time"
)

const (
	compactLayout  = "20060102150405"
	readableLayout = "2006-01-02_15:04:05"
)

// CompactStamp formats t as YYYYmmddHHMMSS followed by the sub-second
// component in units of 100 microseconds.
func CompactStamp(t time.Time) string {
	return fmt.Sprintf("%s.%d", t.Format(compactLayout), subSecond(t))
}

// ReadableStamp formats t as YYYY-mm-dd_HH:MM:SS followed by the sub-second
// component in units of 100 microseconds. Archive and quarantine files use it.
func ReadableStamp(t time.Time) string {
	return fmt.Sprintf("%s.%d", t.Format(readableLayout), subSecond(t))
}

func subSecond(t time.Time) int {
	return t.Nanosecond() / int(time.Microsecond) / 100
}

// Name holds the parts of a materialized document file name.
type Name struct {
	Prefix     string
	Exchange   string
	RoutingKey string
	Stamp      string
	Suffix     string
	Ext        string
}

// String renders [prefix_]exchange_routingkey_stamp[_suffix][.ext]. When
// prefix, stamp, suffix and extension are all empty the name falls back to
// Default_exchange_routingkey.
func (n Name) String() string {
	prefix := strings.TrimSpace(n.Prefix)
	stamp := strings.TrimSpace(n.Stamp)
	suffix := strings.TrimSpace(n.Suffix)
	ext := strings.TrimPrefix(strings.TrimSpace(n.Ext), ".")

	if prefix == "" && stamp == "" && suffix == "" && ext == "" {
		return "Default_" + n.Exchange + "_" + n.RoutingKey
	}

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('_')
	}
	b.WriteString(n.Exchange)
	b.WriteByte('_')
	b.WriteString(n.RoutingKey)
	if stamp != "" {
		b.WriteByte('_')
		b.WriteString(stamp)
	}
	if suffix != "" {
		b.WriteByte('_')
		b.WriteString(suffix)
	}
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

// TempName is the transient file the raw body is written to before decoding.
func TempName(exchange, routingKey, stamp string) string {
	return "tmp_" + exchange + "_" + routingKey + "_" + stamp + ".txt"
}
