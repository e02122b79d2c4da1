// Package icon provides a flexible multi-variant rendering engine for UI symbols and feedback indicators.
//
// Icons can be displayed as emoji, nerd-font glyphs, or plain ASCII depending on user preference.
package icon

import (
	"github.com/oriontv-cli/oriontv/key"
	"github.com/spf13/viper"
)

// Visual Variant Constants - these define the supported aesthetic styles for icon rendering.
const (
	emoji = "emoji"
	nerd  = "nerd"
	plain = "plain"
)

// AvailableVariants returns a slice of all registered icon style identifiers.
func AvailableVariants() []string {
	return []string{emoji, nerd, plain}
}

// iconDef encapsulates the visual representations of a single UI symbol across all supported variants.
type iconDef struct {
	emoji string
	nerd  string
	plain string
}

// Get retrieves the visual representation for the given Def based on the global icons variant configuration.
func (d *iconDef) Get() string {
	switch viper.GetString(key.IconsVariant) {
	case emoji:
		return d.emoji
	case nerd:
		return d.nerd
	case plain:
		return d.plain
	default:
		return d.plain
	}
}

// Def identifies a renderable UI symbol.
type Def int

const (
	Success Def = iota + 1
	Fail
	Progress
	Play
	Source
	Star
)

var icons = map[Def]*iconDef{
	Success:  {emoji: "✅", nerd: "", plain: "[ok]"},
	Fail:     {emoji: "❌", nerd: "", plain: "[fail]"},
	Progress: {emoji: "⏳", nerd: "", plain: "..."},
	Play:     {emoji: "▶️", nerd: "", plain: ">"},
	Source:   {emoji: "📡", nerd: "", plain: "[src]"},
	Star:     {emoji: "⭐", nerd: "", plain: "*"},
}

// Get renders the requested symbol in the configured variant.
func Get(d Def) string {
	if def, ok := icons[d]; ok {
		return def.Get()
	}
	return ""
}
