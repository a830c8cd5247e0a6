package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"autopost/internal/config"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) PageToken(context.Context) (string, error) {
	return s.token, s.err
}

// pageStub simulates the publish endpoints: photo upload, feed post,
// and comment creation.
type pageStub struct {
	photoFails   bool
	feedFails    bool
	commentFails bool

	photoCalls   atomic.Int32
	feedCalls    atomic.Int32
	commentCalls atomic.Int32

	lastFeedForm    map[string]string
	lastCommentText string
}

func (s *pageStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/page-1/photos", func(w http.ResponseWriter, r *http.Request) {
		s.photoCalls.Add(1)
		if s.photoFails {
			http.Error(w, `{"error":{"message":"bad image"}}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"photo-42"}`))
	})
	mux.HandleFunc("/v19.0/page-1/feed", func(w http.ResponseWriter, r *http.Request) {
		s.feedCalls.Add(1)
		if s.feedFails {
			http.Error(w, `{"error":{"message":"feed rejected"}}`, http.StatusBadRequest)
			return
		}
		_ = r.ParseForm()
		s.lastFeedForm = map[string]string{}
		for key := range r.PostForm {
			s.lastFeedForm[key] = r.PostForm.Get(key)
		}
		_, _ = w.Write([]byte(`{"id":"page-1_post-7"}`))
	})
	mux.HandleFunc("/v19.0/page-1_post-7/comments", func(w http.ResponseWriter, r *http.Request) {
		s.commentCalls.Add(1)
		if s.commentFails {
			http.Error(w, `{"error":{"message":"comment rejected"}}`, http.StatusBadRequest)
			return
		}
		_ = r.ParseForm()
		s.lastCommentText = r.PostForm.Get("message")
		_, _ = w.Write([]byte(`{"id":"comment-1"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestPoster(graphURL string) *Poster {
	poster := NewPoster(config.FacebookConfig{
		PageID:     "page-1",
		APIVersion: "v19.0",
	}, staticTokens{token: "page-token"}, nil)
	poster.graphURL = graphURL
	return poster
}

func TestPublishAttachesPhotoAndComment(t *testing.T) {
	t.Parallel()

	stub := &pageStub{}
	poster := newTestPoster(stub.server(t).URL)

	postID, err := poster.Publish(context.Background(), "Big news 🚀", "https://cdn.example.com/img.png", "https://example.com/article")
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if postID != "page-1_post-7" {
		t.Fatalf("unexpected post id: %s", postID)
	}

	if got := stub.lastFeedForm["attached_media[0]"]; got != `{"media_fbid":"photo-42"}` {
		t.Fatalf("unexpected attached media: %s", got)
	}
	if got := stub.lastFeedForm["message"]; got != "Big news 🚀" {
		t.Fatalf("unexpected message: %s", got)
	}
	if !strings.Contains(stub.lastCommentText, "https://example.com/article") {
		t.Fatalf("comment does not carry the link: %q", stub.lastCommentText)
	}
}

func TestPublishSurvivesCommentFailure(t *testing.T) {
	t.Parallel()

	stub := &pageStub{commentFails: true}
	poster := newTestPoster(stub.server(t).URL)

	postID, err := poster.Publish(context.Background(), "caption", "https://cdn.example.com/img.png", "https://example.com/a")
	if err != nil {
		t.Fatalf("a failed comment must not fail the publish: %v", err)
	}
	if postID != "page-1_post-7" {
		t.Fatalf("unexpected post id: %s", postID)
	}
}

func TestPublishStopsWhenPhotoUploadFails(t *testing.T) {
	t.Parallel()

	stub := &pageStub{photoFails: true}
	poster := newTestPoster(stub.server(t).URL)

	if _, err := poster.Publish(context.Background(), "caption", "https://cdn.example.com/img.png", ""); err == nil {
		t.Fatal("expected photo upload failure to fail the publish")
	}
	if stub.feedCalls.Load() != 0 {
		t.Fatal("feed post must not be attempted after a failed photo upload")
	}
}

func TestPublishSkipsCommentWithoutLink(t *testing.T) {
	t.Parallel()

	stub := &pageStub{}
	poster := newTestPoster(stub.server(t).URL)

	if _, err := poster.Publish(context.Background(), "caption", "https://cdn.example.com/img.png", ""); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if stub.commentCalls.Load() != 0 {
		t.Fatalf("expected no comment without a link, got %d calls", stub.commentCalls.Load())
	}
}

func TestPublishFailsWithoutToken(t *testing.T) {
	t.Parallel()

	stub := &pageStub{}
	poster := NewPoster(config.FacebookConfig{PageID: "page-1", APIVersion: "v19.0"},
		staticTokens{err: fmt.Errorf("no valid page token available")}, nil)
	poster.graphURL = stub.server(t).URL

	if _, err := poster.Publish(context.Background(), "caption", "https://cdn.example.com/img.png", ""); err == nil {
		t.Fatal("expected token resolution failure to fail the publish")
	}
	if stub.photoCalls.Load() != 0 {
		t.Fatal("no upload must happen without a token")
	}
}
