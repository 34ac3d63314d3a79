package eventregistry

import (
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// DataRawPayload is the payload for the data.raw event.
type DataRawPayload struct {
	Content          string
	Source           string
	DataType         types.DataType
	Timestamp        time.Time
	PreserveOriginal bool
	OriginalData     any
	Metadata         map[string]any
}

// DataMessagePayload is the payload for the data.message event.
type DataMessagePayload struct {
	Message   types.NormalizedMessage
	Source    string
	Timestamp time.Time
	Metadata  map[string]any
}

// DecisionIntentPayload is the payload for the decision.intent event.
type DecisionIntentPayload struct {
	Intent   types.Intent
	Provider string
}

// DecisionProviderConnectedPayload is the payload for decision.provider.connected.
type DecisionProviderConnectedPayload struct {
	Provider         string
	PreviousProvider string
	Endpoint         string
	Metadata         map[string]any
	Timestamp        time.Time
}

// DecisionProviderDisconnectedPayload is the payload for decision.provider.disconnected.
type DecisionProviderDisconnectedPayload struct {
	Provider  string
	Reason    string
	WillRetry bool
	Metadata  map[string]any
	Timestamp time.Time
}

// RenderCompletedPayload is the payload for render.completed.
type RenderCompletedPayload struct {
	Provider   string
	OutputType string
	Success    bool
	DurationMs float64
	Metadata   map[string]any
	Timestamp  time.Time
}

// RenderFailedPayload is the payload for render.failed.
type RenderFailedPayload struct {
	Provider     string
	OutputType   string
	ErrorType    string
	ErrorMessage string
	Recoverable  bool
	Metadata     map[string]any
	Timestamp    time.Time
}

// CoreErrorPayload is the payload for core.error.
type CoreErrorPayload struct {
	Source    string
	Message   string
	Timestamp time.Time
}

// OBSSendTextPayload is the payload for obs.send_text.
type OBSSendTextPayload struct {
	SourceName string
	Text       string
}

// OBSSwitchScenePayload is the payload for obs.switch_scene.
type OBSSwitchScenePayload struct {
	SceneName string
}

// OBSSetSourceVisibilityPayload is the payload for obs.set_source_visibility.
type OBSSetSourceVisibilityPayload struct {
	SourceName string
	Visible    bool
}

// RemoteStreamRequestImagePayload is the payload for remote_stream.request_image.
type RemoteStreamRequestImagePayload struct {
	Timestamp time.Time
}

// NewCore returns a Registry pre-populated with every core event name bound
// to its payload type from this table. Managers register their own
// extension-defined event names (if any) directly against the returned
// Registry.
func NewCore() *Registry {
	r := New()
	r.Register(DataRaw, DataRawPayload{})
	r.Register(DataMessage, DataMessagePayload{})
	r.Register(DecisionIntent, DecisionIntentPayload{})
	r.Register(DecisionProviderConnected, DecisionProviderConnectedPayload{})
	r.Register(DecisionProviderDisconnect, DecisionProviderDisconnectedPayload{})
	r.Register(RenderCompleted, RenderCompletedPayload{})
	r.Register(RenderFailed, RenderFailedPayload{})
	r.Register(CoreError, CoreErrorPayload{})
	r.Register(OBSSendText, OBSSendTextPayload{})
	r.Register(OBSSwitchScene, OBSSwitchScenePayload{})
	r.Register(OBSSetSourceVisibility, OBSSetSourceVisibilityPayload{})
	r.Register(RemoteStreamRequestImage, RemoteStreamRequestImagePayload{})
	return r
}
