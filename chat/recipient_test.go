package chat

import (
	"testing"
)

func TestRecipientEmail(t *testing.T) {
	tests := []struct {
		name        string
		currentUser string
		users       []string
		expected    string
	}{
		{name: "current user first", currentUser: "a@x.com", users: []string{"a@x.com", "b@x.com"}, expected: "b@x.com"},
		{name: "current user second", currentUser: "b@x.com", users: []string{"a@x.com", "b@x.com"}, expected: "a@x.com"},
		{name: "self conversation", currentUser: "a@x.com", users: []string{"a@x.com", "a@x.com"}, expected: "a@x.com"},
		{name: "sole entry", currentUser: "a@x.com", users: []string{"a@x.com"}, expected: "a@x.com"},
		{name: "current user absent", currentUser: "c@x.com", users: []string{"a@x.com", "b@x.com"}, expected: "a@x.com"},
		{name: "empty", currentUser: "a@x.com", users: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecipientEmail(tt.currentUser, tt.users); got != tt.expected {
				t.Errorf("RecipientEmail(%q, %v) = %q; want %q", tt.currentUser, tt.users, got, tt.expected)
			}
		})
	}
}

func TestRecipientEmailSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"alice@x.com", "bob@x.com"},
		{"Alice@x.com", "alice@x.com"},
		{"a@b.co", "z@y.io"},
	}
	for _, p := range pairs {
		users := []string{p[0], p[1]}
		if got := RecipientEmail(p[0], users); got != p[1] {
			t.Errorf("RecipientEmail(%q, %v) = %q; want %q", p[0], users, got, p[1])
		}
		if got := RecipientEmail(p[1], users); got != p[0] {
			t.Errorf("RecipientEmail(%q, %v) = %q; want %q", p[1], users, got, p[0])
		}
	}
}

func TestInitial(t *testing.T) {
	tests := map[string]string{
		"bob@x.com":  "B",
		"ärger@x.de": "Ä",
		"":           "",
	}
	for email, expected := range tests {
		if got := initial(email); got != expected {
			t.Errorf("initial(%q) = %q; want %q", email, got, expected)
		}
	}
}
