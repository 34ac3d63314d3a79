package elevenlabs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("empty api key should be rejected")
	}
}

func TestStreamMessageShapes(t *testing.T) {
	t.Parallel()

	// Opening message carries auth, format, and settings.
	open := streamMessage{
		Text:          " ",
		VoiceSettings: defaultVoiceSettings(),
		XiAPIKey:      "key",
		OutputFormat:  "pcm_16000",
	}
	raw, err := json.Marshal(open)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"xi_api_key":"key"`, `"output_format":"pcm_16000"`, `"stability":0.5`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("opening message %s missing %s", raw, field)
		}
	}

	// Plain fragments omit the optional fields entirely.
	raw, _ = json.Marshal(streamMessage{Text: "konnichiwa"})
	if strings.Contains(string(raw), "xi_api_key") || strings.Contains(string(raw), "voice_settings") {
		t.Errorf("fragment message should omit optional fields: %s", raw)
	}

	// The flush message is the empty text.
	raw, _ = json.Marshal(streamMessage{Text: ""})
	if string(raw) != `{"text":""}` {
		t.Errorf("flush message = %s", raw)
	}
}

func TestAudioFrameDecoding(t *testing.T) {
	t.Parallel()
	var frame audioFrame
	if err := json.Unmarshal([]byte(`{"audio":"AAEC","isFinal":true}`), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Audio != "AAEC" || !frame.IsFinal {
		t.Errorf("frame = %+v", frame)
	}
}

func TestSynthesizeStreamRequiresVoiceID(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), make(chan string), types.VoiceProfile{}); err == nil {
		t.Fatal("empty voice ID should be rejected")
	}
}

func TestVoiceListingProfiles(t *testing.T) {
	t.Parallel()
	raw := `{"voices":[
		{"voice_id":"v1","name":"Hikari","category":"premade","labels":{"accent":"japanese"}},
		{"voice_id":"v2","name":"Nova"}
	]}`
	var listing voiceListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	profiles := listing.profiles()
	if len(profiles) != 2 {
		t.Fatalf("profiles = %d, want 2", len(profiles))
	}
	if profiles[0].ID != "v1" || profiles[0].Provider != "elevenlabs" {
		t.Errorf("profile 0 = %+v", profiles[0])
	}
	if profiles[0].Metadata["accent"] != "japanese" || profiles[0].Metadata["category"] != "premade" {
		t.Errorf("profile 0 metadata = %v", profiles[0].Metadata)
	}
	if len(profiles[1].Metadata) != 0 {
		t.Errorf("profile 1 metadata should be empty, got %v", profiles[1].Metadata)
	}
}

func TestCloneVoiceUnsupported(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.CloneVoice(context.Background(), nil); err == nil {
		t.Fatal("CloneVoice should report unsupported")
	}
}
