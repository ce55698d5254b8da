package satafs

import (
	"time"
)

// ParseDate decodes a FAT date stamp:
//  Bits 0-4: day of month, 1-31.
//  Bits 5-8: month of year, 1-12.
//  Bits 9-15: years since 1980, 0-127.
// The result is at midnight UTC. A day or month of 0 is invalid and yields time.Time{},
// so IsZero can be used to detect it. Months above 12 roll over into the next year.
func ParseDate(input uint16) time.Time {
	day := int(input & 0x1F)
	month := int(input>>5&0x0F)
	year := 1980 + int(input>>9)

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT time stamp with a two second granularity:
//  Bits 0-4: seconds divided by two, 0-29.
//  Bits 5-10: minutes, 0-59.
//  Bits 11-15: hours, 0-23.
// The result is on January 1 of year 1, so midnight is time.Time{}.
// Out of range values are capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := int(input>>5&0x3F)
	hours := int(input >> 11)

	t := time.Date(1, 1, 1, hours, minutes, seconds, 0, time.UTC)
	if t.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return t
}

// timestamp is a point in time as stored in a directory entry.
type timestamp struct {
	date uint16
	time uint16
	// tenth holds the 10ms units lost by the two second granularity of time, 0-199.
	tenth byte
}

// newTimestamp encodes t, clamped to the range a FAT date can hold.
func newTimestamp(t time.Time) timestamp {
	switch {
	case t.Year() < 1980:
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, t.Location())
	case t.Year() > 2107:
		t = time.Date(2107, 12, 31, 23, 59, 59, 0, t.Location())
	}
	return timestamp{
		date:  uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day()),
		time:  uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2),
		tenth: byte(t.Second()%2*100 + t.Nanosecond()/int(10*time.Millisecond)),
	}
}

// Time joins date and time of the stamp, at the stored two second granularity.
func (ts timestamp) Time() time.Time {
	d := ParseDate(ts.date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(ts.time)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
