package suclient_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/permaweb/ao-cu/suclient"
)

func TestLoadProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/processes/p1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"id":"p1","owner":"alice","module_id":"m1"}`)
	}))
	defer srv.Close()

	c := suclient.New(srv.URL, time.Second, 2)
	p, err := c.LoadProcess("p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner != "alice" || p.ModuleID != "m1" {
		t.Fatalf("unexpected process: %+v", p)
	}
}

func TestLoadProcessNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := suclient.New(srv.URL, time.Second, 1)
	if _, err := c.LoadProcess("missing"); err == nil {
		t.Fatalf("expected an error for a missing process")
	}
}

func TestLoadMessagesPaginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"messages":[{"ordinate":"1"},{"ordinate":"2"}],"has_more":true}`)
			return
		}
		fmt.Fprint(w, `{"messages":[{"ordinate":"3"}],"has_more":false}`)
	}))
	defer srv.Close()

	c := suclient.New(srv.URL, time.Second, 1)
	stream := c.LoadMessages("p1", "0", "10")

	var got []string
	for {
		m, ok, err := stream.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, string(m.Ordinate))
	}
	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Fatalf("unexpected message sequence: %v", got)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 page fetches, got %d", calls)
	}
}

func TestLoadMessagesRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"messages":[{"ordinate":"1"}],"has_more":false}`)
	}))
	defer srv.Close()

	c := suclient.New(srv.URL, time.Second, 2)
	stream := c.LoadMessages("p1", "0", "10")
	m, ok, err := stream.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(m.Ordinate) != "1" {
		t.Fatalf("expected a retried fetch to eventually succeed, got %+v ok=%v", m, ok)
	}
}
