package native

import "testing"

func TestIsNearDuplicate(t *testing.T) {
	cases := []struct {
		name string
		prev string
		next string
		want bool
	}{
		{"identical", "Turn off the lights", "turn off the lights.", true},
		{"punctuation only", "what's the weather?", "Whats the weather", true},
		{"short suffix", "book a table", "book a table for two", true},
		{"long suffix", "book a table", "book a table for two people tomorrow night", false},
		{"reworded", "set a timer for ten minutes", "set the timer for ten minutes", true},
		{"different", "play some jazz", "what time is it", false},
		{"empty", "", "hello", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNearDuplicate(tc.prev, tc.next, DefaultDedupOptions); got != tc.want {
				t.Fatalf("IsNearDuplicate(%q, %q) = %v, want %v", tc.prev, tc.next, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Hello,   WORLD!! "); got != "hello world" {
		t.Fatalf("unexpected normalize result %q", got)
	}
}
