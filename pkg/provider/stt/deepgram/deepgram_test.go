package deepgram

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("empty api key should be rejected")
	}
}

func TestListenURLDefaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := url.Parse(p.listenURL(stt.StreamConfig{}))
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}
	if !strings.HasPrefix(u.String(), "wss://api.deepgram.com/v1/listen") {
		t.Errorf("endpoint = %s", u)
	}
	q := u.Query()
	if q.Get("model") != "nova-3" || q.Get("language") != "en" || q.Get("sample_rate") != "16000" {
		t.Errorf("defaults not applied: %v", q)
	}
	if q.Get("encoding") != "linear16" || q.Get("interim_results") != "true" {
		t.Errorf("stream parameters missing: %v", q)
	}
	if q.Has("channels") {
		t.Error("channels should be omitted when unset")
	}
}

func TestListenURLStreamOverridesAndKeywords(t *testing.T) {
	t.Parallel()
	p, _ := New("key", WithModel("base"), WithLanguage("en"), WithSampleRate(8000))

	raw := p.listenURL(stt.StreamConfig{
		SampleRate: 48000,
		Channels:   2,
		Language:   "ja",
		Keywords:   []types.KeywordBoost{{Keyword: "Amaidesu", Boost: 5}},
	})
	q, _ := url.Parse(raw)
	values := q.Query()
	if values.Get("model") != "base" {
		t.Errorf("model = %q", values.Get("model"))
	}
	if values.Get("language") != "ja" || values.Get("sample_rate") != "48000" || values.Get("channels") != "2" {
		t.Errorf("stream overrides not applied: %v", values)
	}
	if got := values.Get("keywords"); got != "Amaidesu:5" {
		t.Errorf("keywords = %q, want Amaidesu:5", got)
	}
}

func TestDecodeResult(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		raw    string
		wantOK bool
		want   types.Transcript
	}{
		{
			name:   "final with words",
			raw:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello chat","confidence":0.97,"words":[{"word":"hello","start":0.1,"end":0.4,"confidence":0.99}]}]}}`,
			wantOK: true,
			want:   types.Transcript{Text: "hello chat", IsFinal: true, Confidence: 0.97},
		},
		{
			name:   "interim",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`,
			wantOK: true,
			want:   types.Transcript{Text: "hel", Confidence: 0.5},
		},
		{name: "metadata event", raw: `{"type":"Metadata"}`},
		{name: "no alternatives", raw: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "garbage", raw: `{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := decodeResult([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tc.want.Text || got.IsFinal != tc.want.IsFinal || got.Confidence != tc.want.Confidence {
				t.Errorf("transcript = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecodeResultWordTimings(t *testing.T) {
	t.Parallel()
	raw := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hi","words":[{"word":"hi","start":1.5,"end":2.0,"confidence":0.9}]}]}}`
	got, ok := decodeResult([]byte(raw))
	if !ok {
		t.Fatal("decode failed")
	}
	if len(got.Words) != 1 {
		t.Fatalf("words = %d, want 1", len(got.Words))
	}
	w := got.Words[0]
	if w.Start != 1500*time.Millisecond || w.End != 2*time.Second {
		t.Errorf("timings = %v..%v", w.Start, w.End)
	}
}
