// Package control merges the layered turn controls: persona defaults, a
// session's stored pending control, and the per-turn control sent by the
// client. It also builds the persona system prompt handed to the LLM.
//
// Layering rules follow one principle: a sub-control equal to its type
// default means "unset" and defers to the layer below.
package control

import (
	"fmt"

	"github.com/MrWong99/visema/pkg/types"
)

// Resolve computes the effective control for a turn. Each sub-control is
// taken from user if it differs from the type default, otherwise from
// persona. The emotion layer is compared structurally; the character layer
// is keyed on PersonaID, so a client that names a persona owns the whole
// character block.
func Resolve(user, persona types.TurnControl) types.TurnControl {
	out := user
	if user.Emotion == types.DefaultEmotionControl() {
		out.Emotion = persona.Emotion
	}
	if user.Character.PersonaID == types.DefaultPersonaID {
		out.Character = persona.Character
	}
	return out
}

// Merge folds a stored pending control (base) into a freshly-sent per-turn
// control (override). Per sub-control: override wins if non-default, else
// base if non-default, else the type default. This gives control_update a
// next-turn effect without requiring it to be complete.
func Merge(base, override types.TurnControl) types.TurnControl {
	out := types.DefaultTurnControl()

	switch {
	case override.Emotion != types.DefaultEmotionControl():
		out.Emotion = override.Emotion
	case base.Emotion != types.DefaultEmotionControl():
		out.Emotion = base.Emotion
	}

	switch {
	case override.Character != types.DefaultCharacterControl():
		out.Character = override.Character
	case base.Character != types.DefaultCharacterControl():
		out.Character = base.Character
	}

	return out
}

// BuildSystemPrompt injects emotion and character into the LLM system prompt
// so the model writes in the target register before TTS is applied.
func BuildSystemPrompt(ctrl types.TurnControl, personaName string) string {
	e, c := ctrl.Emotion, ctrl.Character

	prompt := fmt.Sprintf("You are %s.", personaName)
	if e.Label != types.EmotionNeutral || e.Intensity > 0.3 {
		prompt += fmt.Sprintf(" Respond with a %s tone (intensity %.1f/1.0).", e.Label, e.Intensity)
	}
	if c.SpeechRate < 0.85 {
		prompt += " Speak slowly and deliberately."
	} else if c.SpeechRate > 1.2 {
		prompt += " Speak at a brisk, energetic pace."
	}
	if c.Expressivity > 0.7 {
		prompt += " Be expressive and emotionally engaged."
	}
	prompt += " Keep responses conversational and appropriately brief."
	return prompt
}
