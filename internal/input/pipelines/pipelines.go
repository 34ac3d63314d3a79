// Package pipelines assembles the built-in input pipelines from the
// [pipelines] config section into a ready-to-use PipelineManager. Like the
// provider register files, this is the static list that replaces runtime
// discovery: a new pipeline is added here and nowhere else.
package pipelines

import (
	"time"

	"github.com/Mai-with-u/amaidesu/internal/config"
	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/internal/input/pipelines/ratelimit"
	"github.com/Mai-with-u/amaidesu/internal/input/pipelines/similarity"
)

// BuildFromConfig constructs a PipelineManager holding every built-in
// pipeline whose `[pipelines.<name>.input]` table sets enabled=true.
// Missing tables leave that pipeline out entirely; enabled pipelines fill
// unset knobs with their own defaults.
func BuildFromConfig(svc *config.Service) *input.PipelineManager {
	m := input.NewPipelineManager()

	if table, ok := inputTable(svc, "rate_limit"); ok {
		m.Register(ratelimit.New(rateLimitConfig(table)))
	}
	if table, ok := inputTable(svc, "similarity_filter"); ok {
		m.Register(similarity.New(similarityConfig(table)))
	}
	return m
}

// inputTable returns pipelines.<name>.input when present and enabled.
func inputTable(svc *config.Service, name string) (map[string]any, bool) {
	table := svc.GetPipelineConfig(name)
	sub, ok := table["input"].(map[string]any)
	if !ok {
		return nil, false
	}
	enabled, _ := sub["enabled"].(bool)
	if !enabled {
		return nil, false
	}
	return sub, true
}

func rateLimitConfig(t map[string]any) ratelimit.Config {
	c := ratelimit.Config{Enabled: true}
	c.Priority = intVal(t, "priority")
	c.GlobalRateLimit = intVal(t, "global_rate_limit")
	c.UserRateLimit = intVal(t, "user_rate_limit")
	c.WindowSize = secondsVal(t, "window_size")
	c.Timeout = secondsVal(t, "timeout_seconds")
	c.ErrorHandling = errorHandling(t)
	return c
}

func similarityConfig(t map[string]any) similarity.Config {
	c := similarity.Config{Enabled: true, CrossUserFilter: true}
	c.Priority = intVal(t, "priority")
	if v, ok := t["similarity_threshold"].(float64); ok {
		c.SimilarityThreshold = v
	}
	c.TimeWindow = secondsVal(t, "time_window")
	c.MinTextLength = intVal(t, "min_text_length")
	if v, ok := t["cross_user_filter"].(bool); ok {
		c.CrossUserFilter = v
	}
	c.Timeout = secondsVal(t, "timeout_seconds")
	c.ErrorHandling = errorHandling(t)
	return c
}

func intVal(t map[string]any, key string) int {
	if v, ok := t[key].(int64); ok {
		return int(v)
	}
	return 0
}

func secondsVal(t map[string]any, key string) time.Duration {
	switch v := t[key].(type) {
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}

func errorHandling(t map[string]any) input.PipelineErrorHandling {
	if v, ok := t["error_handling"].(string); ok {
		switch input.PipelineErrorHandling(v) {
		case input.Continue, input.Stop, input.Drop:
			return input.PipelineErrorHandling(v)
		}
	}
	return ""
}
