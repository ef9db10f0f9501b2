package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAckeeFeedPageViews(t_ *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t_.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"data":{"domains":[{"statistics":{"pages":[
			{"count":10,"value":"https://example.org/alpha"},
			{"count":4,"value":"https://example.org/alpha?from=feed"},
			{"count":7,"value":"https://example.org/topics/beta"},
			{"count":1,"value":"https://example.org/"}
		]}}]}}`))
	}))
	defer srv.Close()

	feed := NewAckeeFeed(srv.URL, "secret")
	counts, err := feed.PageViews()
	if err != nil {
		t_.Fatal(err)
	}

	// The same slug with different query strings is one page; the root URL
	// yields no slug and is dropped.
	want := map[string]int{"alpha": 14, "beta": 7}
	if diff := cmp.Diff(want, counts); diff != "" {
		t_.Errorf("PageViews mismatch (-want +got):\n%s", diff)
	}
}

func TestAckeeFeedErrors(t_ *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	feed := NewAckeeFeed(srv.URL, "bad")
	if _, err := feed.PageViews(); err == nil {
		t_.Error("no error on HTTP 403")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"domains":[]}}`))
	}))
	defer empty.Close()

	feed = NewAckeeFeed(empty.URL, "ok")
	if _, err := feed.PageViews(); err == nil {
		t_.Error("no error on empty domain list")
	}

	if NewAckeeFeed("http://x", "") != nil {
		t_.Error("feed created without a token")
	}
}
