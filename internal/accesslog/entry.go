package accesslog

import (
	"fmt"
	"time"
)

// apacheTimeFormat is the timestamp layout of the Combined Log Format.
const apacheTimeFormat = "02/Jan/2006:15:04:05 -0700"

// Entry is one access log record: the request descriptor joined with the
// resolved geo data and the decision outcome. Entries are write-once and
// append-only.
type Entry struct {
	// Time is the wall-clock arrival instant; it selects the UTC day
	// file the entry is written to.
	Time time.Time

	// RemoteIP is the resolved client IP.
	RemoteIP string

	// Method and URI form the logged request line.
	Method string
	URI    string

	// Proto is the protocol of the request line, HTTP/1.1 if empty.
	Proto string

	// Status is the HTTP status of the decision.
	Status int

	// Size is the response body size in bytes, logged as "-" when zero
	// per Apache convention.
	Size int

	// Referer and UserAgent come from the original request headers.
	Referer   string
	UserAgent string

	// Country and City are the resolved geo fields appended after the
	// Combined fields. Both may be empty.
	Country string
	City    string
}

// Format renders the entry as one Apache Combined Log Format line with
// the two trailing geo fields, terminated by a newline.
func (e Entry) Format() string {
	proto := e.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}

	size := "-"
	if e.Size > 0 {
		size = fmt.Sprintf("%d", e.Size)
	}

	return fmt.Sprintf("%s - - [%s] \"%s %s %s\" %d %s %q %q %q %q\n",
		e.RemoteIP,
		e.Time.UTC().Format(apacheTimeFormat),
		e.Method,
		e.URI,
		proto,
		e.Status,
		size,
		dashIfEmpty(e.Referer),
		dashIfEmpty(e.UserAgent),
		dashIfEmpty(e.Country),
		dashIfEmpty(e.City),
	)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
