package keyspace

import "testing"

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"", "", true},
		{"", "x", false},
		{"foo", "foo", true},
		{"foo", "bar", false},
		{"foo", "fooo", false},
		{"f?o", "foo", true},
		{"f?o", "fo", false},
		{"f?o", "flto", false},
		{"?", "a", true},
		{"?", "", false},
		{"foo*", "foo", true},
		{"foo*", "foobar", true},
		{"foo*", "fo", false},
		{"*bar", "foobar", true},
		{"*bar", "bar", true},
		{"*bar", "barz", false},
		{"f*o", "fo", true},
		{"f*o", "fooooo", true},
		{"f*o", "fox", false},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "abc", true},
		{"a*b*c", "aXbY", false},
		{"**", "whatever", true},
		{"user:?:*", "user:1:cart", true},
		{"user:?:*", "user:12:cart", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.s, func(t *testing.T) {
			if got := matchGlob(tt.pattern, tt.s); got != tt.want {
				t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
			}
		})
	}
}
