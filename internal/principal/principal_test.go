package principal

import (
	"net/http"
	"testing"
)

func TestExtractAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"missing", "", "", ErrMissingAuth},
		{"malformed no scheme", "abc123", "", ErrInvalidAuth},
		{"wrong scheme", "Basic abc123", "", ErrInvalidAuth},
		{"valid", "Bearer abc123", "abc123", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			got, err := ExtractAPIKey(r)
			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("key = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]Principal{
		"admin-key": {OwnerID: "admin-owner", Admin: true},
		"user-key":  {OwnerID: "owner-1"},
	})

	p, err := r.Resolve(nil, "user-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OwnerID != "owner-1" || p.Admin {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := r.Resolve(nil, "unknown"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestEffectiveOwner(t *testing.T) {
	nonAdmin := Principal{OwnerID: "owner-1"}
	admin := Principal{OwnerID: "admin-owner", Admin: true}

	cases := []struct {
		name           string
		p              Principal
		requestedOwner string
		requestedAny   bool
		wantOwner      string
		wantAny        bool
	}{
		{"non-admin ignores requested owner", nonAdmin, "owner-2", false, "owner-1", false},
		{"non-admin ignores requested any", nonAdmin, "", true, "owner-1", false},
		{"admin defaults to self", admin, "", false, "admin-owner", false},
		{"admin requests specific owner", admin, "owner-2", false, "owner-2", false},
		{"admin requests any", admin, "", true, "", true},
		{"admin any takes precedence over owner", admin, "owner-2", true, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owner, any := EffectiveOwner(tc.p, tc.requestedOwner, tc.requestedAny)
			if owner != tc.wantOwner || any != tc.wantAny {
				t.Fatalf("EffectiveOwner() = (%q, %v), want (%q, %v)", owner, any, tc.wantOwner, tc.wantAny)
			}
		})
	}
}
