package restphotos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"photoframe-sync/internal/domain"
)

type memTokenStore struct{ tok *oauth2.Token }

func (m *memTokenStore) Load() (*oauth2.Token, error) { return m.tok, nil }
func (m *memTokenStore) Save(tok *oauth2.Token) error  { m.tok = tok; return nil }

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := &memTokenStore{tok: &oauth2.Token{
		AccessToken:  "initial-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}}
	conf := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token"},
	}
	return New("test", srv.URL, conf, store)
}

func TestFullScanDedupesAndSkipsNonImages(t *testing.T) {
	pageOne := true
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/media" && r.URL.Query().Get("pageSize") == "1":
			// Init's reachability probe: answer 200 without consuming page one.
		case r.URL.Path == "/media" && pageOne:
			pageOne = false
			json.NewEncoder(w).Encode(listPage{
				Items: []mediaItem{
					{ID: "a", MimeType: "image/jpeg"},
					{ID: "b", MimeType: "text/plain"},
				},
				NextPageToken: "p2",
			})
		case r.URL.Path == "/media":
			json.NewEncoder(w).Encode(listPage{
				Items: []mediaItem{
					{ID: "a", MimeType: "image/jpeg"}, // duplicate, across pages
					{ID: "c", MimeType: "image/png"},
				},
			})
		}
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	metas, err := p.FullScan(context.Background(), []domain.Container{{ID: "album", Depth: -1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("want 2 deduped images, got %d: %+v", len(metas), metas)
	}
}

func TestInitPermissionDeniedIsPermanent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	err := p.Init(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.ClassPermanent {
		t.Fatalf("want permanent, got %v", domain.ClassOf(err))
	}
}

func TestInitServerErrorIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := p.Init(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.ClassTransient {
		t.Fatalf("want transient, got %v", domain.ClassOf(err))
	}
}

func TestDeltaAccumulatesAcrossPages(t *testing.T) {
	first := true
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changes" {
			return
		}
		if first {
			first = false
			json.NewEncoder(w).Encode(map[string]any{
				"addedOrModified": []mediaItem{{ID: "x", MimeType: "image/jpeg"}},
				"deletedIds":      []string{},
				"nextToken":       "t2",
				"more":            true,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"addedOrModified": []mediaItem{{ID: "y", MimeType: "image/jpeg"}},
			"deletedIds":      []string{"z"},
			"nextToken":       "t3",
			"more":            false,
		})
	})
	p.httpClient = http.DefaultClient // bypass the /media init probe; Delta doesn't need auth for this test

	result, err := p.Delta(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AddedOrModified) != 2 {
		t.Fatalf("want 2 added across pages, got %d", len(result.AddedOrModified))
	}
	if result.NextToken != "t3" {
		t.Fatalf("want final token t3, got %q", result.NextToken)
	}
	if len(result.DeletedIDs) != 1 || result.DeletedIDs[0] != "z" {
		t.Fatalf("want deleted [z], got %v", result.DeletedIDs)
	}
}
