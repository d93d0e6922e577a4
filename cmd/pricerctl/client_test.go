package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDoRequest_SetsBearerAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want %q", got, "Bearer test-key")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	data, err := doRequest(http.MethodGet, srv.URL, "test-key", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "ok") {
		t.Fatalf("unexpected body: %s", data)
	}
}

func TestDoRequest_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()

	if _, err := doRequest(http.MethodGet, srv.URL, "", nil); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList("a,b,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCommaList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitCommaList() = %v, want %v", got, want)
		}
	}
}
