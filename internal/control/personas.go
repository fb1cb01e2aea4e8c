package control

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/visema/pkg/types"
)

// Preset is an immutable named control pair.
type Preset struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Control     types.TurnControl `json:"control"`
}

// presets is the authoritative table. Values mirror the published persona
// defaults; do not edit without updating the client docs.
var presets = map[string]Preset{
	"default": {
		ID:          "default",
		DisplayName: "Assistant",
		Control: types.TurnControl{
			Emotion: types.EmotionControl{
				Label:     types.EmotionNeutral,
				Intensity: 0.5,
				Valence:   0.0,
				Arousal:   0.0,
			},
			Character: types.CharacterControl{
				PersonaID:    "default",
				SpeechRate:   1.0,
				PitchShift:   0.0,
				Expressivity: 0.6,
				MotionGain:   1.0,
			},
		},
	},
	"professional": {
		ID:          "professional",
		DisplayName: "Professional",
		Control: types.TurnControl{
			Emotion: types.EmotionControl{
				Label:     types.EmotionNeutral,
				Intensity: 0.3,
				Valence:   0.1,
				Arousal:   -0.1,
			},
			Character: types.CharacterControl{
				PersonaID:    "professional",
				SpeechRate:   0.95,
				PitchShift:   0.0,
				Expressivity: 0.4,
				MotionGain:   0.7,
			},
		},
	},
	"casual": {
		ID:          "casual",
		DisplayName: "Casual",
		Control: types.TurnControl{
			Emotion: types.EmotionControl{
				Label:     types.EmotionHappy,
				Intensity: 0.4,
				Valence:   0.3,
				Arousal:   0.1,
			},
			Character: types.CharacterControl{
				PersonaID:    "casual",
				SpeechRate:   1.05,
				PitchShift:   0.0,
				Expressivity: 0.7,
				MotionGain:   1.1,
			},
		},
	},
	"excited": {
		ID:          "excited",
		DisplayName: "Excited",
		Control: types.TurnControl{
			Emotion: types.EmotionControl{
				Label:     types.EmotionHappy,
				Intensity: 0.8,
				Valence:   0.7,
				Arousal:   0.6,
			},
			Character: types.CharacterControl{
				PersonaID:    "excited",
				SpeechRate:   1.2,
				PitchShift:   0.05,
				Expressivity: 0.9,
				MotionGain:   1.5,
			},
		},
	},
}

// PresetFor returns the preset for id. Unknown ids fall back to "default"
// with found=false so the caller can log the miss.
func PresetFor(id string) (Preset, bool) {
	if p, ok := presets[id]; ok {
		return p, true
	}
	return presets[types.DefaultPersonaID], false
}

// DisplayName returns the human-readable name for id, "Assistant" for
// unknown ids.
func DisplayName(id string) string {
	p, _ := PresetFor(id)
	return p.DisplayName
}

// List returns all presets sorted by id.
func List() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// suggestThreshold is the minimum Jaro-Winkler similarity for a persona
// suggestion to be worth logging.
const suggestThreshold = 0.6

// Suggest returns the known preset id most similar to the unknown id, or ""
// when nothing scores above the threshold. Used to enrich the fallback
// warning when a client misspells a persona.
func Suggest(id string) string {
	best, bestScore := "", suggestThreshold
	for known := range presets {
		if s := matchr.JaroWinkler(id, known, false); s > bestScore {
			best, bestScore = known, s
		}
	}
	return best
}
