package storage

import (
	"fmt"
	"time"

	"pnlcal/internal/core"
)

// dateValue scans a DATE column (postgres) or an ISO TEXT column (sqlite).
type dateValue struct {
	core.Date
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = core.NewDate(v.Year(), int(v.Month()), v.Day())
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *dateValue) parse(s string) error {
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	parsed, err := core.ParseDate(s)
	if err != nil {
		return err
	}
	d.Date = parsed
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// timeValue scans timestamps whether the driver hands back time.Time or text.
type timeValue struct {
	time.Time
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (t *timeValue) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognised format %q", s)
}
