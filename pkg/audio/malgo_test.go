package audio

import (
	"strings"
	"testing"

	"github.com/gen2brain/malgo"
)

func TestDeviceIDRoundTrip(t *testing.T) {
	var id malgo.DeviceID
	id[0], id[1], id[3] = 0x0a, 0xff, 0x01
	got, err := parseDeviceID(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("device id changed: %s vs %s", got, id)
	}
}

func TestParseDeviceIDRejectsBadInput(t *testing.T) {
	var id malgo.DeviceID
	cases := []string{"zz", strings.Repeat("00", len(id)+1)}
	for _, in := range cases {
		if _, err := parseDeviceID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
