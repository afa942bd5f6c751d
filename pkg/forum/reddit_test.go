package forum

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

func TestClassify(t *testing.T) {
	unauthorized := &reddit.ErrorResponse{Response: &http.Response{StatusCode: http.StatusUnauthorized}}
	if !IsFatal(classify("current_user", unauthorized)) {
		t.Error("expected 401 to be fatal")
	}
	serverErr := &reddit.ErrorResponse{Response: &http.Response{StatusCode: http.StatusBadGateway}}
	if IsFatal(classify("fetch_post", serverErr)) {
		t.Error("expected 502 to be transient")
	}
	if IsFatal(classify("stream", errors.New("connection reset"))) {
		t.Error("expected plain errors to be transient")
	}
}

func TestStripKindAndAuthor(t *testing.T) {
	cases := map[string]string{
		"t3_abc":  "abc",
		"t1_xyz":  "xyz",
		"abc":     "abc",
		"foo_bar": "foo_bar",
	}
	for in, want := range cases {
		if got := stripKind(in); got != want {
			t.Errorf("stripKind(%q) = %q, want %q", in, got, want)
		}
	}
	if author("[deleted]") != "" {
		t.Error("deleted author should map to empty")
	}
}

func TestConvertComment(t *testing.T) {
	c := convertComment(&reddit.Comment{ID: "c1", PostID: "t3_p1", ParentID: "t3_p1", Author: "alice", Body: "hi"})
	if c.PostID != "p1" || !c.IsTopLevel() {
		t.Fatalf("expected top-level comment on p1, got %+v", c)
	}
	nested := convertComment(&reddit.Comment{ID: "c2", PostID: "t3_p1", ParentID: "t1_c1"})
	if nested.IsTopLevel() || nested.ParentID != "c1" {
		t.Fatalf("expected nested comment under c1, got %+v", nested)
	}
}

func TestRedditConfigValidate(t *testing.T) {
	err := RedditConfig{ClientID: "id", UserAgent: "ua"}.Validate()
	if err == nil {
		t.Fatal("expected missing credentials error")
	}
	for _, name := range []string{"REDDIT_CLIENT_SECRET", "REDDIT_USERNAME", "REDDIT_PASSWORD"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in %q", name, err)
		}
	}
}
