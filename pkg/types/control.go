package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EmotionLabel enumerates the emotion categories the pipeline understands.
type EmotionLabel string

const (
	EmotionNeutral   EmotionLabel = "neutral"
	EmotionHappy     EmotionLabel = "happy"
	EmotionSad       EmotionLabel = "sad"
	EmotionAngry     EmotionLabel = "angry"
	EmotionSurprised EmotionLabel = "surprised"
	EmotionFearful   EmotionLabel = "fearful"
	EmotionDisgusted EmotionLabel = "disgusted"
)

// IsValid reports whether l is a known emotion label.
func (l EmotionLabel) IsValid() bool {
	switch l {
	case EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry,
		EmotionSurprised, EmotionFearful, EmotionDisgusted:
		return true
	}
	return false
}

// EmotionLabels lists all valid labels in canonical order.
func EmotionLabels() []string {
	return []string{
		string(EmotionNeutral),
		string(EmotionHappy),
		string(EmotionSad),
		string(EmotionAngry),
		string(EmotionSurprised),
		string(EmotionFearful),
		string(EmotionDisgusted),
	}
}

// EmotionControl steers the emotional register of one turn.
type EmotionControl struct {
	Label EmotionLabel `json:"label"`

	// Intensity in [0,1].
	Intensity float64 `json:"intensity"`

	// Valence in [-1,1]: -1 negative, +1 positive.
	Valence float64 `json:"valence"`

	// Arousal in [-1,1]: -1 calm, +1 excited.
	Arousal float64 `json:"arousal"`
}

// DefaultEmotionControl returns the neutral default. "Default" detection in
// the control resolver is structural equality with this value.
func DefaultEmotionControl() EmotionControl {
	return EmotionControl{Label: EmotionNeutral, Intensity: 0.5}
}

// Validate rejects out-of-range values.
func (e EmotionControl) Validate() error {
	var errs []error
	if !e.Label.IsValid() {
		errs = append(errs, fmt.Errorf("label: unknown emotion %q", e.Label))
	}
	if e.Intensity < 0 || e.Intensity > 1 {
		errs = append(errs, fmt.Errorf("intensity: %v outside [0,1]", e.Intensity))
	}
	if e.Valence < -1 || e.Valence > 1 {
		errs = append(errs, fmt.Errorf("valence: %v outside [-1,1]", e.Valence))
	}
	if e.Arousal < -1 || e.Arousal > 1 {
		errs = append(errs, fmt.Errorf("arousal: %v outside [-1,1]", e.Arousal))
	}
	return errors.Join(errs...)
}

// UnmarshalJSON fills absent fields with the documented defaults before
// validating, so a partial control object on the wire still compares equal
// to DefaultEmotionControl when it carries no overrides.
func (e *EmotionControl) UnmarshalJSON(data []byte) error {
	var w struct {
		Label     *EmotionLabel `json:"label"`
		Intensity *float64      `json:"intensity"`
		Valence   *float64      `json:"valence"`
		Arousal   *float64      `json:"arousal"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = DefaultEmotionControl()
	if w.Label != nil {
		e.Label = *w.Label
	}
	if w.Intensity != nil {
		e.Intensity = *w.Intensity
	}
	if w.Valence != nil {
		e.Valence = *w.Valence
	}
	if w.Arousal != nil {
		e.Arousal = *w.Arousal
	}
	return e.Validate()
}

// DefaultPersonaID is the persona every session starts from and the marker
// the control resolver uses to detect an unset CharacterControl.
const DefaultPersonaID = "default"

// CharacterControl steers delivery style: pace, pitch, expressivity, motion.
type CharacterControl struct {
	PersonaID string `json:"persona_id"`

	// SpeechRate in [0.25,4.0]; 1.0 is natural pace.
	SpeechRate float64 `json:"speech_rate"`

	// PitchShift in [-1,1]; 0 is the voice's native pitch.
	PitchShift float64 `json:"pitch_shift"`

	// Expressivity in [0,1]; how animated the delivery is.
	Expressivity float64 `json:"expressivity"`

	// MotionGain in [0,2]; scales avatar head/body motion.
	MotionGain float64 `json:"motion_gain"`
}

// DefaultCharacterControl returns the neutral default delivery style.
func DefaultCharacterControl() CharacterControl {
	return CharacterControl{
		PersonaID:    DefaultPersonaID,
		SpeechRate:   1.0,
		PitchShift:   0.0,
		Expressivity: 0.6,
		MotionGain:   1.0,
	}
}

// Validate rejects out-of-range values.
func (c CharacterControl) Validate() error {
	var errs []error
	if c.SpeechRate < 0.25 || c.SpeechRate > 4.0 {
		errs = append(errs, fmt.Errorf("speech_rate: %v outside [0.25,4.0]", c.SpeechRate))
	}
	if c.PitchShift < -1 || c.PitchShift > 1 {
		errs = append(errs, fmt.Errorf("pitch_shift: %v outside [-1,1]", c.PitchShift))
	}
	if c.Expressivity < 0 || c.Expressivity > 1 {
		errs = append(errs, fmt.Errorf("expressivity: %v outside [0,1]", c.Expressivity))
	}
	if c.MotionGain < 0 || c.MotionGain > 2 {
		errs = append(errs, fmt.Errorf("motion_gain: %v outside [0,2]", c.MotionGain))
	}
	return errors.Join(errs...)
}

// UnmarshalJSON fills absent fields with the documented defaults before
// validating. See EmotionControl.UnmarshalJSON.
func (c *CharacterControl) UnmarshalJSON(data []byte) error {
	var w struct {
		PersonaID    *string  `json:"persona_id"`
		SpeechRate   *float64 `json:"speech_rate"`
		PitchShift   *float64 `json:"pitch_shift"`
		Expressivity *float64 `json:"expressivity"`
		MotionGain   *float64 `json:"motion_gain"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = DefaultCharacterControl()
	if w.PersonaID != nil {
		c.PersonaID = *w.PersonaID
	}
	if w.SpeechRate != nil {
		c.SpeechRate = *w.SpeechRate
	}
	if w.PitchShift != nil {
		c.PitchShift = *w.PitchShift
	}
	if w.Expressivity != nil {
		c.Expressivity = *w.Expressivity
	}
	if w.MotionGain != nil {
		c.MotionGain = *w.MotionGain
	}
	return c.Validate()
}

// TurnControl pairs the two control layers applied to one turn.
// Equality is structural; the zero-override state is DefaultTurnControl.
type TurnControl struct {
	Emotion   EmotionControl   `json:"emotion"`
	Character CharacterControl `json:"character"`
}

// DefaultTurnControl returns the fully-default control pair.
func DefaultTurnControl() TurnControl {
	return TurnControl{
		Emotion:   DefaultEmotionControl(),
		Character: DefaultCharacterControl(),
	}
}

// Validate rejects out-of-range values in either sub-control.
func (t TurnControl) Validate() error {
	var errs []error
	if err := t.Emotion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("emotion: %w", err))
	}
	if err := t.Character.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("character: %w", err))
	}
	return errors.Join(errs...)
}

// UnmarshalJSON fills an absent sub-control with its type default, so a
// client may send only the layer it wants to override.
func (t *TurnControl) UnmarshalJSON(data []byte) error {
	var w struct {
		Emotion   *EmotionControl   `json:"emotion"`
		Character *CharacterControl `json:"character"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = DefaultTurnControl()
	if w.Emotion != nil {
		t.Emotion = *w.Emotion
	}
	if w.Character != nil {
		t.Character = *w.Character
	}
	return nil
}
