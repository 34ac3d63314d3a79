package avatar

import (
	"context"
	"testing"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestParseVTSConfig_Defaults(t *testing.T) {
	c := parseVTSConfig(nil)
	if c.Host != "localhost" || c.Port != 8001 {
		t.Fatalf("got %+v, want localhost:8001 defaults", c)
	}
}

func TestParseVTSConfig_Overrides(t *testing.T) {
	c := parseVTSConfig(map[string]any{"vts_host": "192.168.1.5", "vts_port": int64(9001)})
	if c.Host != "192.168.1.5" || c.Port != 9001 {
		t.Fatalf("got %+v, want overridden host/port", c)
	}
}

func TestVTSProvider_ExecuteWithoutConnectionFails(t *testing.T) {
	p, err := NewVTS(nil, provider.Context{})
	if err != nil {
		t.Fatalf("NewVTS: %v", err)
	}
	if err := p.Execute(context.Background(), types.Intent{Emotion: types.EmotionHappy}); err == nil {
		t.Fatal("expected an error when the VTS websocket is not connected")
	}
}

func TestVTSEmotionAndHotkeyMaps_CoverEveryEnumMember(t *testing.T) {
	for _, e := range []types.Emotion{
		types.EmotionNeutral, types.EmotionHappy, types.EmotionSad, types.EmotionAngry,
		types.EmotionSurprised, types.EmotionConfused, types.EmotionScared, types.EmotionLove,
		types.EmotionShy, types.EmotionExcited,
	} {
		if _, ok := vtsParams[e]; !ok {
			t.Errorf("vtsParams has no entry for emotion %q", e)
		}
	}

	for _, a := range []types.ActionType{
		types.ActionBlink, types.ActionNod, types.ActionShake, types.ActionWave,
		types.ActionClap, types.ActionMotion,
	} {
		if _, ok := vtsHotkeys[a]; !ok {
			t.Errorf("vtsHotkeys has no entry for action %q", a)
		}
	}
}
