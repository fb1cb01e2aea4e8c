// Package alignment tracks audio/video timestamp drift within a turn.
//
// Each video frame produced from an audio chunk yields one sample:
// drift = video_ts - audio_ts, in milliseconds. Positive drift means video
// runs ahead of audio; negative means it lags. The tracker keeps a sliding
// window of recent samples so a momentary hiccup does not dominate the signal.
package alignment

// DefaultWindow is the number of recent samples kept.
const DefaultWindow = 10

// DefaultBudgetMs is the mean drift magnitude considered acceptable.
const DefaultBudgetMs = 80.0

// Tracker is a bounded ring of recent drift samples. It is not safe for
// concurrent use: only the turn that owns it calls Update.
type Tracker struct {
	samples []float64
	next    int
}

// NewTracker returns a Tracker holding the last window samples.
// window values below 1 fall back to DefaultWindow.
func NewTracker(window int) *Tracker {
	if window < 1 {
		window = DefaultWindow
	}
	return &Tracker{samples: make([]float64, 0, window)}
}

// Update records a new timestamp pair and returns the drift in ms.
func (t *Tracker) Update(audioTsMs, videoTsMs float64) float64 {
	drift := videoTsMs - audioTsMs
	if len(t.samples) < cap(t.samples) {
		t.samples = append(t.samples, drift)
	} else {
		t.samples[t.next] = drift
	}
	t.next = (t.next + 1) % cap(t.samples)
	return drift
}

// Mean returns the average drift over the current window, 0 when empty.
func (t *Tracker) Mean() float64 {
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s
	}
	return sum / float64(len(t.samples))
}

// MaxAbs returns the largest drift magnitude in the window, 0 when empty.
func (t *Tracker) MaxAbs() float64 {
	var m float64
	for _, s := range t.samples {
		if s < 0 {
			s = -s
		}
		if s > m {
			m = s
		}
	}
	return m
}

// WithinBudget reports whether the mean drift magnitude is at most budgetMs.
func (t *Tracker) WithinBudget(budgetMs float64) bool {
	mean := t.Mean()
	if mean < 0 {
		mean = -mean
	}
	return mean <= budgetMs
}

// Len returns the number of samples currently in the window.
func (t *Tracker) Len() int {
	return len(t.samples)
}

// Reset clears the window.
func (t *Tracker) Reset() {
	t.samples = t.samples[:0]
	t.next = 0
}
