package exam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLoader(t *testing.T, baseURL string, cfg LoaderConfig) *Loader {
	t.Helper()
	cfg.BaseURL = baseURL
	return NewLoader(cfg, nil, zerolog.Nop())
}

func TestCanonicalSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Financial Accounting", "accounts"},
		{"  english language ", "english"},
		{"Maths", "mathematics"},
		{"Literature-in-English", "literature"},
		{"Computer Studies", "computer"},
		{"Further Maths", "furthermaths"}, // unrecognized passes through, whitespace stripped
		{"physics", "physics"},
	}
	for _, tc := range tests {
		if got := CanonicalSubject(tc.in); got != tc.want {
			t.Errorf("CanonicalSubject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResourcePath(t *testing.T) {
	l := testLoader(t, "http://content.local/subjects", LoaderConfig{})
	got := l.ResourcePath("Financial Accounting", "ss1")
	want := "http://content.local/subjects/SS1/accounts_ss1.json"
	if got != want {
		t.Fatalf("ResourcePath = %q, want %q", got, want)
	}
}

func TestLoadNormalizesCorrectIndex(t *testing.T) {
	const body = `{
		"time_allowed_minutes": 30,
		"questions": [
			{"id": "q1", "question": "pick b", "options": ["w", "x", "y", "z"], "correct_index": 1},
			{"id": "q2", "question": "pick c", "options": ["w", "x", "y", "z"], "correctOption": " c "},
			{"id": "q3", "question": "pick d", "options": ["A. w", "B. x", "C. y", "D. z"], "answer": "z"},
			{"id": "q4", "question": "unresolvable", "options": ["w", "x"], "correctOption": "Z"},
			{"question": "no id", "options": ["w", "x"], "correct_index": 0}
		]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	set, err := testLoader(t, srv.URL, LoaderConfig{}).Load(context.Background(), "physics", "SS2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if set.TimeAllowedSeconds != 30*60 {
		t.Errorf("TimeAllowedSeconds = %d, want %d", set.TimeAllowedSeconds, 30*60)
	}

	wantIdx := []int{1, 2, 3, -1, 0}
	for i, want := range wantIdx {
		if got := set.Questions[i].CorrectIndex; got != want {
			t.Errorf("question %d CorrectIndex = %d, want %d", i, got, want)
		}
	}

	// Invariant: every index is -1 or in range.
	for _, q := range set.Questions {
		if q.CorrectIndex != -1 && (q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options)) {
			t.Errorf("question %s CorrectIndex %d out of range", q.ID, q.CorrectIndex)
		}
	}

	if got := set.Questions[4].ID; got != "4" {
		t.Errorf("missing id should fall back to position, got %q", got)
	}
}

func TestLoadDefaultsTimeAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions": [{"id":"q1","question":"?","options":["a","b"],"correct_index":0}]}`))
	}))
	defer srv.Close()

	set, err := testLoader(t, srv.URL, LoaderConfig{}).Load(context.Background(), "physics", "SS1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.TimeAllowedSeconds != 60*60 {
		t.Errorf("default TimeAllowedSeconds = %d, want %d", set.TimeAllowedSeconds, 3600)
	}
}

func TestLoadResourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "missing"):
			http.NotFound(w, r)
		default:
			w.Write([]byte(`{"questions": [`)) // truncated JSON
		}
	}))
	defer srv.Close()

	l := testLoader(t, srv.URL, LoaderConfig{})

	var resErr *ResourceError
	if _, err := l.Load(context.Background(), "missing", "SS1"); !errors.As(err, &resErr) {
		t.Errorf("404 should yield ResourceError, got %v", err)
	}
	if _, err := l.Load(context.Background(), "physics", "SS1"); !errors.As(err, &resErr) {
		t.Errorf("truncated body should yield ResourceError, got %v", err)
	}

	srv.Close()
	if _, err := l.Load(context.Background(), "physics", "SS1"); !errors.As(err, &resErr) {
		t.Errorf("connection failure should yield ResourceError, got %v", err)
	}
}

func TestLoadRejectsQuestionWithoutOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions": [{"id":"q1","question":"?","options":[],"correct_index":0}]}`))
	}))
	defer srv.Close()

	var valErr *ValidationError
	_, err := testLoader(t, srv.URL, LoaderConfig{}).Load(context.Background(), "physics", "SS1")
	if !errors.As(err, &valErr) {
		t.Fatalf("empty options should yield ValidationError, got %v", err)
	}
}

func TestShuffleOptionsPreservesCorrectness(t *testing.T) {
	const body = `{"questions": [
		{"id":"q1","question":"?","options":["A. alpha","B. beta","C. gamma","D. delta"],"correctOption":"C"},
		{"id":"q2","question":"?","options":["one","two","three","four"],"correct_index":3}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	wantText := map[string]string{"q1": "gamma", "q2": "four"}

	// Shuffling is random; run enough rounds to cover permutations.
	for round := 0; round < 25; round++ {
		set, err := testLoader(t, srv.URL, LoaderConfig{ShuffleQuestions: true, ShuffleOptions: true}).
			Load(context.Background(), "physics", "SS1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		for _, q := range set.Questions {
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				t.Fatalf("round %d: question %s index %d out of range", round, q.ID, q.CorrectIndex)
			}
			got := normalizeOptionText(q.Options[q.CorrectIndex])
			if got != wantText[q.ID] {
				t.Fatalf("round %d: question %s correct option %q, want %q", round, q.ID, got, wantText[q.ID])
			}
		}
	}
}

func TestNormalizeOptionText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A. Paris", "paris"},
		{"B) Lagos", "lagos"},
		{"C- Cairo", "cairo"},
		{"D: Abuja", "abuja"},
		{"  plain  ", "plain"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := normalizeOptionText(tc.in); got != tc.want {
			t.Errorf("normalizeOptionText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
