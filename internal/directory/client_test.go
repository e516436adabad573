package directory_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/librelane/parkval/internal/directory"
)

// fakeDirectory serves the token and patrons/find endpoints the way the
// Sierra-style API does.
type fakeDirectory struct {
	secret       string
	tokenIssued  int
	patronStatus int    // 0 = 200
	patronBody   string // JSON
}

func (f *fakeDirectory) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte(f.secret))
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.tokenIssued++
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, f.tokenIssued)
	})
	mux.HandleFunc("GET /patrons/find", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.patronStatus != 0 {
			w.WriteHeader(f.patronStatus)
			return
		}
		fmt.Fprint(w, f.patronBody)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDirectory) *directory.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := directory.NewHTTPClient(srv.URL, []byte(f.secret))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestLookup_ParsesRecord(t *testing.T) {
	f := &fakeDirectory{
		secret: "key:secret",
		patronBody: `{"names":["Patron, Default"],"barcodes":["21945001234567"],
			"expirationDate":"3020-01-01","blockInfo":{"code":""}}`,
	}
	c := newTestClient(t, f)

	rec, err := c.Lookup(context.Background(), "21945001234567")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Name != "Default Patron" {
		t.Errorf("expected name 'Default Patron', got %q", rec.Name)
	}
	if rec.Blocks != "" {
		t.Errorf("expected no blocks, got %q", rec.Blocks)
	}
	want := time.Date(3020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rec.Expiration.Equal(want) {
		t.Errorf("expected expiration %v, got %v", want, rec.Expiration)
	}
}

func TestLookup_BlockCodePassedThrough(t *testing.T) {
	f := &fakeDirectory{
		secret: "key:secret",
		patronBody: `{"names":["Patron, Blocked"],"expirationDate":"3020-01-01",
			"blockInfo":{"code":"g"}}`,
	}
	c := newTestClient(t, f)

	rec, err := c.Lookup(context.Background(), "21945001234567")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Blocks != "g" {
		t.Errorf("expected block code g, got %q", rec.Blocks)
	}
}

func TestLookup_RecordNotFound(t *testing.T) {
	f := &fakeDirectory{
		secret:     "key:secret",
		patronBody: `{"name":"Record not found"}`,
	}
	c := newTestClient(t, f)

	_, err := c.Lookup(context.Background(), "21945009999999")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookup_NotFoundStatus(t *testing.T) {
	f := &fakeDirectory{secret: "key:secret", patronStatus: http.StatusNotFound}
	c := newTestClient(t, f)

	_, err := c.Lookup(context.Background(), "21945009999999")
	if !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookup_ServerErrorIsNotNotFound(t *testing.T) {
	f := &fakeDirectory{secret: "key:secret", patronStatus: http.StatusInternalServerError}
	c := newTestClient(t, f)

	_, err := c.Lookup(context.Background(), "21945001234567")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, directory.ErrNotFound) {
		t.Error("server error must not masquerade as not-found")
	}
}

func TestLookup_ReusesTokenAcrossCalls(t *testing.T) {
	f := &fakeDirectory{
		secret:     "key:secret",
		patronBody: `{"names":["Patron, Default"],"expirationDate":"3020-01-01","blockInfo":{"code":""}}`,
	}
	c := newTestClient(t, f)

	for i := 0; i < 3; i++ {
		if _, err := c.Lookup(context.Background(), "21945001234567"); err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
	}
	if f.tokenIssued != 1 {
		t.Errorf("expected 1 token issuance for 3 lookups, got %d", f.tokenIssued)
	}
}

func TestLookup_UnreachableDirectory(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	c, err := directory.NewHTTPClient(srv.URL, []byte("key:secret"))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if _, err := c.Lookup(context.Background(), "21945001234567"); err == nil {
		t.Fatal("expected communication error")
	}
}

func TestNewHTTPClient_Validation(t *testing.T) {
	if _, err := directory.NewHTTPClient("", []byte("key:secret")); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := directory.NewHTTPClient("http://example.test/api", nil); err == nil {
		t.Error("expected error for empty secret")
	}
}
