package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 7, 33, 0, time.UTC)
	to := time.Date(2024, 10, 10, 14, 58, 2, 0, time.UTC)

	af, at := AlignFromTo(from, to, "M5")
	if af.Minute()%5 != 0 || af.Second() != 0 {
		t.Fatalf("from not aligned: %v", af)
	}
	if at.Minute()%5 != 0 || at.Second() != 0 {
		t.Fatalf("to not aligned: %v", at)
	}

	af, _ = AlignFromTo(from, to, "H1")
	if af.Minute() != 0 || af.Hour() != 10 {
		t.Fatalf("hour alignment wrong: %v", af)
	}
}

func TestUTCDay(t *testing.T) {
	ts := time.Date(2024, 10, 10, 23, 59, 59, 0, time.FixedZone("UTC+3", 3*3600))
	if got := UTCDay(ts); got != "2024-10-10" {
		t.Fatalf("unexpected day %q", got)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol(" eurusd "); got != "EURUSD" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV("EURUSD, gbpusd ,,XAUUSD")
	if len(got) != 3 || got[1] != "gbpusd" {
		t.Fatalf("unexpected %v", got)
	}
}
