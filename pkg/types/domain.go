package types

import "time"

// DataType enumerates the closed set of NormalizedMessage origins.
type DataType string

// The closed set of data types a NormalizedMessage may carry.
const (
	DataTypeText      DataType = "text"
	DataTypeGift      DataType = "gift"
	DataTypeSuperChat DataType = "super_chat"
	DataTypeGuard     DataType = "guard"
	DataTypeEnter     DataType = "enter"
)

// Valid reports whether d is a member of the closed DataType enum.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeText, DataTypeGift, DataTypeSuperChat, DataTypeGuard, DataTypeEnter:
		return true
	default:
		return false
	}
}

// RawAccessor is implemented by a NormalizedMessage's Raw payload when the
// originating platform has a native user identity and display text distinct
// from the normalized Text field.
type RawAccessor interface {
	UserID() string
	DisplayText() string
}

// NormalizedMessage is the unit flowing from the Input domain to the
// Decision domain. Once constructed it is treated as immutable: a pipeline
// that wants to amend it must produce a copy rather than mutate fields in
// place, since the same value may be read concurrently by pipeline stats
// and the publishing goroutine.
type NormalizedMessage struct {
	// Text is the human-readable, LLM-ready description of this message.
	// MUST be non-empty once normalization has completed.
	Text string

	// Source identifies the provider that produced this message.
	Source string

	// DataType is one of the closed DataType enum values.
	DataType DataType

	// Importance is a 0.0–1.0 priority/filtering signal.
	Importance float64

	// Timestamp marks when the provider observed this message.
	Timestamp time.Time

	// Raw is an optional opaque platform-native object. If set, it SHOULD
	// implement RawAccessor.
	Raw any

	// Metadata carries auxiliary string-keyed fields (e.g. user_id, group_id).
	Metadata map[string]any
}

// Valid checks the NormalizedMessage invariants from the data model.
func (m NormalizedMessage) Valid() error {
	if m.Text == "" {
		return errEmptyText
	}
	if m.Importance < 0 || m.Importance > 1 {
		return errImportanceRange
	}
	if !m.DataType.Valid() {
		return errUnknownDataType
	}
	return nil
}

// Emotion is the closed set of emotions an Intent may declare.
type Emotion string

// The closed Emotion enum.
const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionSurprised Emotion = "surprised"
	EmotionConfused  Emotion = "confused"
	EmotionScared    Emotion = "scared"
	EmotionLove      Emotion = "love"
	EmotionShy       Emotion = "shy"
	EmotionExcited   Emotion = "excited"
)

// Valid reports whether e is a member of the closed Emotion enum.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry, EmotionSurprised,
		EmotionConfused, EmotionScared, EmotionLove, EmotionShy, EmotionExcited:
		return true
	default:
		return false
	}
}

// ActionType is the closed set of IntentAction directives.
type ActionType string

// The closed ActionType enum.
const (
	ActionExpression ActionType = "expression"
	ActionHotkey     ActionType = "hotkey"
	ActionEmoji      ActionType = "emoji"
	ActionBlink      ActionType = "blink"
	ActionNod        ActionType = "nod"
	ActionShake      ActionType = "shake"
	ActionWave       ActionType = "wave"
	ActionClap       ActionType = "clap"
	ActionSticker    ActionType = "sticker"
	ActionMotion     ActionType = "motion"
	ActionCustom     ActionType = "custom"
	ActionGame       ActionType = "game_action"
	ActionNone       ActionType = "none"
)

// Valid reports whether t is a member of the closed ActionType enum.
func (t ActionType) Valid() bool {
	switch t {
	case ActionExpression, ActionHotkey, ActionEmoji, ActionBlink, ActionNod, ActionShake,
		ActionWave, ActionClap, ActionSticker, ActionMotion, ActionCustom, ActionGame, ActionNone:
		return true
	default:
		return false
	}
}

// IntentAction is one avatar/side-effect directive carried by an Intent.
type IntentAction struct {
	// Type is one of the closed ActionType enum.
	Type ActionType

	// Params is a free-form map of type-specific parameters.
	Params map[string]any

	// Priority is 0–100; higher runs sooner when a dispatcher orders actions.
	Priority int
}

// Valid checks the IntentAction invariants.
func (a IntentAction) Valid() error {
	if !a.Type.Valid() {
		return errUnknownActionType
	}
	if a.Priority < 0 || a.Priority > 100 {
		return errPriorityRange
	}
	return nil
}

// SourceContext echoes the provenance of the message an Intent answers.
type SourceContext struct {
	Source       string
	DataType     DataType
	UserID       string
	UserNickname string
	Importance   float64
	Extra        map[string]any
}

// Intent is the unit flowing from the Decision domain to the Output domain.
// It is published exactly once by the active DecisionProvider and consumed
// by every enabled OutputProvider; it is never retained beyond that fan-out.
type Intent struct {
	ID            string
	OriginalText  string
	ResponseText  string
	Emotion       Emotion
	Actions       []IntentAction
	SourceContext SourceContext
	Metadata      map[string]any
	Timestamp     time.Time
}

// Valid checks the Intent invariants: a closed emotion and well-formed actions.
func (i Intent) Valid() error {
	if !i.Emotion.Valid() {
		return errUnknownEmotion
	}
	for idx := range i.Actions {
		if err := i.Actions[idx].Valid(); err != nil {
			return err
		}
	}
	return nil
}

// RawData is a private intermediate used by the few input providers that
// need a staging step before producing a NormalizedMessage. Most providers
// skip it and normalize directly.
type RawData struct {
	Content   string
	Source    string
	DataType  DataType
	Timestamp time.Time
	Metadata  map[string]any
}

// AudioChunk is one frame of PCM audio flowing through the Audio Stream
// Channel during a single utterance.
type AudioChunk struct {
	// Data is int16 PCM audio.
	Data []byte

	SampleRate int
	Channels   int

	// Sequence is monotonically increasing per utterance; gaps are possible
	// when a subscriber's backpressure strategy drops chunks.
	Sequence uint64

	Timestamp time.Time
}

// AudioMetadata accompanies the start/end boundaries of an utterance on the
// Audio Stream Channel.
type AudioMetadata struct {
	Text       string
	SampleRate int
	Channels   int
	Timestamp  time.Time
}

// EventStats holds per-event counters served by the event bus. Values are
// returned by copy so callers cannot mutate the bus's internal counters.
type EventStats struct {
	EmitCount            uint64
	ListenerCount        int
	ErrorCount           uint64
	LastEmitTime         time.Time
	LastErrorTime        time.Time
	TotalExecutionTimeMs float64
}

// ExtensionInfo describes a composite extension: what it is, what it owns,
// and what it must load after.
type ExtensionInfo struct {
	Name         string
	Version      string
	Description  string
	Author       string
	Dependencies []string
	Providers    []string
	Enabled      bool
}
