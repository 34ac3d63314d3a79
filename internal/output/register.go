package output

import (
	"github.com/Mai-with-u/amaidesu/internal/output/providers/avatar"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/debugconsole"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/discordvoice"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/obscontrol"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/subtitle"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/tts"
	"github.com/Mai-with-u/amaidesu/internal/registry"
)

// RegisterProviders binds every built-in output provider's factory into reg,
// mirroring internal/decision.RegisterProviders for the output layer.
func RegisterProviders(reg *registry.Registry) {
	reg.RegisterOutput(subtitle.Name, subtitle.New)
	reg.RegisterOutput(tts.Name, tts.New)
	reg.RegisterOutput(avatar.NameVTS, avatar.NewVTS)
	reg.RegisterOutput(avatar.NameVRChat, avatar.NewVRChat)
	reg.RegisterOutput(avatar.NameWarudo, avatar.NewWarudo)
	reg.RegisterOutput(debugconsole.Name, debugconsole.New)
	reg.RegisterOutput(discordvoice.Name, discordvoice.New)
	reg.RegisterOutput(obscontrol.Name, obscontrol.New)
}
