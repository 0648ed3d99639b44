package config

import "testing"

func TestParseICEServersJSON(t *testing.T) {
	servers, err := ParseICEServersJSON(`[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478?transport=udp"], "username": "u", "credential": "c"}
	]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("urls[0]=%q", servers[0].URLs[0])
	}
	if servers[1].Username != "u" {
		t.Fatalf("username=%q", servers[1].Username)
	}
}

func TestParseICEServersJSON_TurnRequiresCredentials(t *testing.T) {
	if _, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478"}]`); err == nil {
		t.Fatalf("expected error for turn url without credentials")
	}
}

func TestParseICEServersJSON_RejectsUnknownScheme(t *testing.T) {
	if _, err := ParseICEServersJSON(`[{"urls": "https://example.com"}]`); err == nil {
		t.Fatalf("expected error for non-ICE scheme")
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	servers, err := parseICEServersFromConvenienceEnv(
		"stun:a.example.com:3478, stun:b.example.com:3478",
		"turn:t.example.com:3478",
		"user", "pass",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%v", servers[0].URLs)
	}

	if _, err := parseICEServersFromConvenienceEnv("", "turn:t.example.com:3478", "", ""); err == nil {
		t.Fatalf("expected error for turn urls without username/credential")
	}
}
