package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/sumq/internal/content"
)

func sampleRequest() content.SaveRequest {
	return content.SaveRequest{
		Video:   content.VideoInfo{Title: "Science of Volcanoes", URL: "https://youtu.be/dQw4w9WgXcQ", LanguageUsed: "en"},
		Topics:  []content.Topic{{Title: "Lava"}, {Title: "Ash"}},
		QAPairs: []content.QAPair{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}, {Question: "q3", Answer: "a3"}},
		KidFriendly: []content.KidTopic{{Title: "Lava", QAPairs: []content.KidQA{
			{KidFriendlyQuestion: "What is lava?", KidFriendlyAnswer: "Hot rock."},
			{KidFriendlyQuestion: "Is it hot?", KidFriendlyAnswer: "Yes!"},
		}}},
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New("secret", "db123")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c.WithBaseURL(url)
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New("", "db"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("New(no token) err = %v, want ErrNotConfigured", err)
	}
	if _, err := New("tok", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("New(no db) err = %v, want ErrNotConfigured", err)
	}
}

func TestSave_MapsPropertiesAndBlocks(t *testing.T) {
	var page map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("Notion-Version") == "" {
			t.Errorf("missing auth or version headers: %v", r.Header)
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/databases/db123":
			fmt.Fprint(w, `{"properties":{
				"Name":{"type":"title"},
				"Link":{"type":"url"},
				"Created":{"type":"date"},
				"Topic count":{"type":"number"},
				"Question count":{"type":"number"},
				"Language":{"type":"select"},
				"Tags":{"type":"multi_select"}}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/pages":
			json.NewDecoder(r.Body).Decode(&page)
			fmt.Fprint(w, `{"id":"page-1","url":"https://notion.so/page-1"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Save(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := content.SaveResult{Success: true, PageURL: "https://notion.so/page-1", PageID: "page-1", Title: "Science of Volcanoes"}
	if res != want {
		t.Errorf("Save = %+v, want %+v", res, want)
	}

	props := page["properties"].(map[string]any)
	if n := props["Topic count"].(map[string]any)["number"]; n != 2.0 {
		t.Errorf("Topic count = %v, want 2", n)
	}
	if n := props["Question count"].(map[string]any)["number"]; n != 3.0 {
		t.Errorf("Question count = %v, want 3", n)
	}
	if u := props["Link"].(map[string]any)["url"]; u != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Link = %v", u)
	}
	lang := props["Language"].(map[string]any)["select"].(map[string]any)["name"]
	if lang != "English" {
		t.Errorf("Language = %v, want English", lang)
	}
	if _, ok := props["Tags"]; !ok {
		t.Error("Tags not set for a science title")
	}

	children := page["children"].([]any)
	// 4 header blocks, 2 topics, 1 heading, 2 pairs * 2 blocks, 1 divider.
	if len(children) != 12 {
		t.Errorf("len(children) = %d, want 12", len(children))
	}
}

func TestSave_FallsBackToTitleOnly(t *testing.T) {
	var page map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"status":403,"code":"restricted_resource","message":"no access"}`)
			return
		}
		json.NewDecoder(r.Body).Decode(&page)
		fmt.Fprint(w, `{"id":"p","url":"u"}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Save(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	props := page["properties"].(map[string]any)
	if len(props) != 1 || props["Name"] == nil {
		t.Errorf("properties = %v, want only Name", props)
	}
}

func TestSave_PageCreationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"properties":{"Name":{"type":"title"}}}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":400,"code":"validation_error","message":"bad body"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Save(context.Background(), sampleRequest())
	var ae *apiError
	if !errors.As(err, &ae) || ae.Code != "validation_error" {
		t.Fatalf("err = %v, want validation_error apiError", err)
	}
}

func TestTags(t *testing.T) {
	got := Tags("Machine Learning for Music Education")
	want := []string{"AI", "Education", "Music"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}
	if Tags("cats") != nil {
		t.Error("Tags(cats) should be empty")
	}
}
