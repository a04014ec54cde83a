package routeros

import (
	"testing"

	"github.com/avlasov/nassync/internal/nas"
)

func TestParseSpeed(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"10M", 10},
		{"0.500M", 0.5},
		{"500k", 0.5},
		{"2000000", 2},
		{"", 0},
		{"M", 0},
	}
	for _, tc := range cases {
		got, err := parseSpeed(tc.in)
		if err != nil {
			t.Fatalf("parseSpeed(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseSpeed(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatRateSwapsSpeedPair(t *testing.T) {
	rate := formatRate(nas.Tariff{SpeedIn: 20, SpeedOut: 10})
	if rate != "10.000M/20.000M" {
		t.Fatalf("expected download/upload order 10.000M/20.000M, got %q", rate)
	}
}

func TestQueueNameRoundTrip(t *testing.T) {
	name := queueName(42)
	if name != "uid42" {
		t.Fatalf("unexpected queue name %q", name)
	}
	uid, err := parseQueueName(name)
	if err != nil {
		t.Fatalf("parse queue name: %v", err)
	}
	if uid != 42 {
		t.Fatalf("expected uid 42, got %d", uid)
	}
}

func TestParseQueueNameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{"", "uid", "uidX", "queue-7", "42"} {
		if _, err := parseQueueName(name); err == nil {
			t.Fatalf("expected error for queue name %q", name)
		}
	}
}

func TestParseShape(t *testing.T) {
	sub, err := parseShape(Attrs{
		"=.id":       "*3",
		"=name":      "uid42",
		"=target":    "10.0.0.5/32",
		"=max-limit": "10M/20M",
		"=disabled":  "false",
	})
	if err != nil {
		t.Fatalf("parse shape: %v", err)
	}
	if sub.UID != 42 {
		t.Fatalf("uid: got %d", sub.UID)
	}
	if sub.IP.String() != "10.0.0.5" {
		t.Fatalf("ip: got %s", sub.IP)
	}
	if sub.Tariff == nil || sub.Tariff.SpeedIn != 20 || sub.Tariff.SpeedOut != 10 {
		t.Fatalf("tariff: got %+v", sub.Tariff)
	}
	if !sub.Active {
		t.Fatalf("expected active subscriber")
	}
	if sub.QueueRef != "*3" {
		t.Fatalf("queue ref: got %q", sub.QueueRef)
	}
}

func TestParseShapeDisabledQueue(t *testing.T) {
	sub, err := parseShape(Attrs{
		"=.id":       "*3",
		"=name":      "uid7",
		"=target":    "10.0.0.9/32",
		"=max-limit": "1M/1M",
		"=disabled":  "true",
	})
	if err != nil {
		t.Fatalf("parse shape: %v", err)
	}
	if sub.Active {
		t.Fatalf("disabled queue must decode as inactive")
	}
}

func TestParseShapeMalformedRows(t *testing.T) {
	rows := []Attrs{
		{"=name": "pppoe-out", "=target": "10.0.0.5/32", "=max-limit": "10M/20M"},
		{"=name": "uid42", "=target": "not-an-ip", "=max-limit": "10M/20M"},
		{"=name": "uid42", "=target": "10.0.0.5/32", "=max-limit": "10M"},
	}
	for i, attrs := range rows {
		if _, err := parseShape(attrs); err == nil {
			t.Fatalf("row %d: expected parse error", i)
		}
	}
}
