package input

import (
	"github.com/Mai-with-u/amaidesu/internal/input/providers/bilidanmaku"
	"github.com/Mai-with-u/amaidesu/internal/input/providers/console"
	"github.com/Mai-with-u/amaidesu/internal/input/providers/discord"
	"github.com/Mai-with-u/amaidesu/internal/input/providers/voiceinput"
	"github.com/Mai-with-u/amaidesu/internal/registry"
)

// RegisterProviders binds every built-in input provider factory into reg.
// Called once at startup before config is loaded, mirroring the static
// registration list this system uses in place of runtime dynamic
// module discovery.
func RegisterProviders(reg *registry.Registry) {
	reg.RegisterInput(console.Name, console.New)
	reg.RegisterInput(bilidanmaku.Name, bilidanmaku.New)
	reg.RegisterInput(discord.Name, discord.New)
	reg.RegisterInput(voiceinput.Name, voiceinput.New)
}
