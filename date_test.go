package satafs

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{name: "epoch", input: 0<<9 | 1<<5 | 1, want: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "last representable day", input: 127<<9 | 12<<5 | 31, want: time.Date(2107, 12, 31, 0, 0, 0, 0, time.UTC)},
		{name: "zero", input: 0, want: time.Time{}},
		{name: "day 0", input: 41<<9 | 2<<5, want: time.Time{}},
		{name: "month 15", input: 41<<9 | 15<<5 | 2, want: time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{name: "midnight", input: 0, want: time.Time{}},
		{name: "last two second step", input: 23<<11 | 59<<5 | 29, want: time.Date(1, 1, 1, 23, 59, 58, 0, time.UTC)},
		{name: "hour 31 is capped", input: 31 << 11, want: time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_newTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		input     time.Time
		want      time.Time
		wantTenth byte
	}{
		{
			name:  "even second",
			input: time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC),
			want:  time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC),
		},
		{
			name:      "odd second and milliseconds go to the tenth field",
			input:     time.Date(2021, 3, 14, 15, 9, 27, 550*int(time.Millisecond), time.UTC),
			want:      time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC),
			wantTenth: 155,
		},
		{
			name:  "before 1980",
			input: time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC),
			want:  time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "after 2107",
			input:     time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC),
			want:      time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC),
			wantTenth: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTimestamp(tt.input)
			if got := ts.Time(); !got.Equal(tt.want) {
				t.Errorf("newTimestamp().Time() = %v, want %v", got, tt.want)
			}
			if ts.tenth != tt.wantTenth {
				t.Errorf("newTimestamp().tenth = %v, want %v", ts.tenth, tt.wantTenth)
			}
		})
	}
}
