package bsky

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetPostReturnsFirstHydratedPost(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/xrpc/app.bsky.feed.getPosts") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("uris"); got != "at://did:plc:abc/app.bsky.feed.post/3k2a" {
			t.Errorf("unexpected uris parameter %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"posts":[{"uri":"at://did:plc:abc/app.bsky.feed.post/3k2a","record":{"text":"hello"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	post, err := client.GetPost(context.Background(), "at://did:plc:abc/app.bsky.feed.post/3k2a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post == nil {
		t.Fatal("expected a post")
	}
	if post.URI != "at://did:plc:abc/app.bsky.feed.post/3k2a" {
		t.Fatalf("unexpected uri %q", post.URI)
	}
	if post.Record == nil || post.Record.Text != "hello" {
		t.Fatalf("unexpected record %+v", post.Record)
	}
}

func TestGetPostMissingPostIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"posts":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	post, err := client.GetPost(context.Background(), "at://did:plc:abc/app.bsky.feed.post/gone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post != nil {
		t.Fatalf("expected nil post, got %+v", post)
	}
}

func TestGetPostRequiresURI(t *testing.T) {
	t.Parallel()

	client := NewClient("", time.Second)
	if _, err := client.GetPost(context.Background(), "   "); err == nil {
		t.Fatal("expected an error for a blank uri")
	}
}

func TestGetProfileResolvesActor(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/xrpc/app.bsky.actor.getProfile") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("actor"); got != "did:plc:abc" {
			t.Errorf("unexpected actor parameter %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"did":"did:plc:abc","handle":"reporter.bsky.social","displayName":"Reporter","avatar":"https://cdn.example/avatar.jpg"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	profile, err := client.GetProfile(context.Background(), "did:plc:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Handle != "reporter.bsky.social" {
		t.Fatalf("unexpected handle %q", profile.Handle)
	}
	if profile.DisplayName != "Reporter" {
		t.Fatalf("unexpected display name %q", profile.DisplayName)
	}
	if profile.Avatar != "https://cdn.example/avatar.jpg" {
		t.Fatalf("unexpected avatar %q", profile.Avatar)
	}
}

func TestGetProfileRequiresDID(t *testing.T) {
	t.Parallel()

	client := NewClient("", time.Second)
	if _, err := client.GetProfile(context.Background(), ""); err == nil {
		t.Fatal("expected an error for a blank did")
	}
}

func TestGetProfileSurfacesServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"InternalServerError"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, err := client.GetProfile(context.Background(), "did:plc:abc"); err == nil {
		t.Fatal("expected an error for a 500 response")
	} else if !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected the status code in the error, got %v", err)
	}
}
