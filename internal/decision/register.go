package decision

import (
	"github.com/Mai-with-u/amaidesu/internal/decision/keywordprovider"
	"github.com/Mai-with-u/amaidesu/internal/decision/llmprovider"
	"github.com/Mai-with-u/amaidesu/internal/decision/replayprovider"
	"github.com/Mai-with-u/amaidesu/internal/decision/ruleprovider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
)

// RegisterProviders binds every built-in decision provider's factory into
// reg, mirroring internal/input.RegisterProviders for the decision layer.
// The mock provider under providers/mock is a test double and is not
// registered here.
func RegisterProviders(reg *registry.Registry) {
	reg.RegisterDecision(llmprovider.Name, llmprovider.New)
	reg.RegisterDecision(ruleprovider.Name, ruleprovider.New)
	reg.RegisterDecision(keywordprovider.Name, keywordprovider.New)
	reg.RegisterDecision(replayprovider.Name, replayprovider.New)
}
