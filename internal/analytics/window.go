// Package analytics keeps the short rolling statistics attached to every
// streamed frame.
package analytics

import "sort"

// DefaultDepth is the number of frames the window remembers
const DefaultDepth = 30

// Observation is the part of a face the summary needs
type Observation struct {
	Known   bool
	Emotion string // empty when emotion classification is disabled
}

// Summary is the aggregate sent with each frame. Known and Unknown are the
// head-count of the latest frame; the emotion fields cover the whole window.
type Summary struct {
	Known           int            `json:"known"`
	Unknown         int            `json:"unknown"`
	Emotions        map[string]int `json:"emotions"`
	DominantEmotion string         `json:"dominant_emotion"`
	EmotionTrend    string         `json:"emotion_trend"`
}

// Window is a fixed-depth ring of per-frame observations. It belongs to a
// single session and is not safe for concurrent use.
type Window struct {
	frames [][]Observation
	next   int
	size   int
}

// NewWindow creates a window of depth frames; depth <= 0 uses DefaultDepth
func NewWindow(depth int) *Window {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Window{frames: make([][]Observation, depth)}
}

// Add appends one frame's observations, dropping the oldest frame when full
func (w *Window) Add(frame []Observation) {
	w.frames[w.next] = frame
	w.next = (w.next + 1) % len(w.frames)
	if w.size < len(w.frames) {
		w.size++
	}
}

// Len is the number of frames currently held
func (w *Window) Len() int { return w.size }

// ordered returns the held frames oldest first
func (w *Window) ordered() [][]Observation {
	out := make([][]Observation, 0, w.size)
	start := (w.next - w.size + len(w.frames)) % len(w.frames)
	for i := range w.size {
		out = append(out, w.frames[(start+i)%len(w.frames)])
	}
	return out
}

// Summary computes the aggregate over the current window
func (w *Window) Summary() Summary {
	s := Summary{Emotions: map[string]int{}}
	frames := w.ordered()
	if len(frames) == 0 {
		return s
	}

	for _, o := range frames[len(frames)-1] {
		if o.Known {
			s.Known++
		} else {
			s.Unknown++
		}
	}

	for _, f := range frames {
		countEmotions(s.Emotions, f)
	}
	s.DominantEmotion = dominant(s.Emotions)

	recent := map[string]int{}
	for _, f := range frames[len(frames)/2:] {
		countEmotions(recent, f)
	}
	s.EmotionTrend = dominant(recent)
	return s
}

func countEmotions(hist map[string]int, frame []Observation) {
	for _, o := range frame {
		if o.Emotion != "" {
			hist[o.Emotion]++
		}
	}
}

// dominant returns the most frequent key; ties go to the alphabetically first
func dominant(hist map[string]int) string {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestN := "", 0
	for _, k := range keys {
		if hist[k] > bestN {
			best, bestN = k, hist[k]
		}
	}
	return best
}
