package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/visema/pkg/provider/tts"
	"github.com/MrWong99/visema/pkg/types"
)

// makeWAV builds a minimal RIFF/WAVE file around pcm.
func makeWAV(t *testing.T, pcm []byte, sampleRate int, channels int) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func collect(t *testing.T, ch <-chan tts.Result) ([]types.AudioChunk, error) {
	t.Helper()
	var chunks []types.AudioChunk
	for r := range ch {
		if r.Err != nil {
			return chunks, r.Err
		}
		chunks = append(chunks, r.Chunk)
	}
	return chunks, nil
}

// ─── construction ────────────────────────────────────────────────────────────

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestNewXTTSRequiresSpeaker(t *testing.T) {
	t.Parallel()

	if _, err := New("http://localhost:8002", WithAPIMode(APIModeXTTS)); err == nil {
		t.Fatal("expected error for XTTS mode without speaker")
	}
}

// ─── synthesis ───────────────────────────────────────────────────────────────

func TestSynthesizeStandard(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 10000) // 5000 samples
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint {
			t.Errorf("path = %q, want %s", r.URL.Path, apiTTSEndpoint)
		}
		if got := r.URL.Query().Get("text"); got != "Hello there." {
			t.Errorf("text = %q", got)
		}
		if got := r.URL.Query().Get("speaker_id"); got != "p225" {
			t.Errorf("speaker_id = %q, want p225", got)
		}
		w.Write(makeWAV(t, pcm, 22050, 1))
	}))
	defer ts.Close()

	p, err := New(ts.URL, WithSpeaker("p225"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ch, err := p.Synthesize(context.Background(), "Hello there.", types.DefaultTurnControl())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	chunks, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if want := (len(pcm) + pcmChunkSize - 1) / pcmChunkSize; len(chunks) != want {
		t.Fatalf("chunks = %d, want %d", len(chunks), want)
	}

	total := 0
	cursor := 0.0
	for i, c := range chunks {
		if c.TimestampMs != cursor {
			t.Errorf("chunk %d timestamp = %v, want %v", i, c.TimestampMs, cursor)
		}
		if c.SampleRate != 22050 {
			t.Errorf("chunk %d sample rate = %d, want 22050", i, c.SampleRate)
		}
		if c.Encoding != types.EncodingPCM {
			t.Errorf("chunk %d encoding = %q", i, c.Encoding)
		}
		cursor += c.DurationMs
		total += len(c.Data)
	}
	if total != len(pcm) {
		t.Errorf("total bytes = %d, want %d", total, len(pcm))
	}
}

func TestSynthesizeXTTS(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			t.Errorf("%s %s, want POST %s", r.Method, r.URL.Path, ttsEndpoint)
		}
		var req ttsRequest
		if err := decodeJSON(r, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SpeakerWav != "narrator" || req.Language != "de" {
			t.Errorf("request = %+v", req)
		}
		w.Write(makeWAV(t, make([]byte, 2000), 24000, 1))
	}))
	defer ts.Close()

	p, err := New(ts.URL, WithAPIMode(APIModeXTTS), WithSpeaker("narrator"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ch, err := p.Synthesize(context.Background(), "Guten Tag.", types.DefaultTurnControl())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	chunks, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].SampleRate != 24000 {
		t.Errorf("sample rate = %d, want 24000", chunks[0].SampleRate)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	p, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "   ", types.DefaultTurnControl()); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestSynthesizeServerErrorSurfacesOnStream(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	p, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Synthesize(context.Background(), "hi", types.DefaultTurnControl())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, err := collect(t, ch); err == nil {
		t.Fatal("expected stream error for HTTP 500")
	}
}

// ─── cloning ─────────────────────────────────────────────────────────────────

func TestCloneSpeaker(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != cloneSpeakerEndpoint {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		w.Write([]byte(`{"name":"cloned-1","status":"ok"}`))
	}))
	defer ts.Close()

	p, err := New(ts.URL, WithAPIMode(APIModeXTTS), WithSpeaker("seed"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	name, err := p.CloneSpeaker(context.Background(), [][]byte{[]byte("wav-bytes")})
	if err != nil {
		t.Fatalf("CloneSpeaker: %v", err)
	}
	if name != "cloned-1" {
		t.Errorf("name = %q, want cloned-1", name)
	}
}

func TestCloneSpeakerStandardModeUnsupported(t *testing.T) {
	t.Parallel()

	p, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.CloneSpeaker(context.Background(), [][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected error in standard mode")
	}
}

// ─── health and capabilities ─────────────────────────────────────────────────

func TestHealthProbesDetailsEndpoint(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detailsEndpoint {
			t.Errorf("path = %q, want %s", r.URL.Path, detailsEndpoint)
		}
		w.Write([]byte(`{"model_name":"tts_models/en/vctk/vits"}`))
	}))
	defer ts.Close()

	p, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if hs := p.Health(context.Background()); !hs.Healthy {
		t.Errorf("health = %+v, want healthy", hs)
	}
}

func TestHealthUnhealthyOnServerError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hs := p.Health(context.Background())
	if hs.Healthy || hs.Detail == "" {
		t.Errorf("health = %+v, want unhealthy with detail", hs)
	}
}

func TestCapabilitiesByMode(t *testing.T) {
	t.Parallel()

	std, _ := New("http://localhost:5002")
	if std.Capabilities().SupportsIdentity {
		t.Error("standard mode must not report identity support")
	}

	xtts, _ := New("http://localhost:8002", WithAPIMode(APIModeXTTS), WithSpeaker("s"))
	if !xtts.Capabilities().SupportsIdentity {
		t.Error("XTTS mode must report identity support")
	}
}

// ─── WAV parsing ─────────────────────────────────────────────────────────────

func TestParseWAV(t *testing.T) {
	t.Parallel()

	wav := makeWAV(t, []byte{1, 2, 3, 4}, 48000, 2)
	info, err := parseWAV(wav)
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if info.SampleRate != 48000 || info.Channels != 2 {
		t.Errorf("info = %+v", info)
	}
	if got := wav[info.DataOffset:]; !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("data = %v", got)
	}
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"too short":    []byte("RIF"),
		"not riff":     []byte("OGGSxxxxxxxxxxxxxxxx"),
		"missing data": append([]byte("RIFF\x04\x00\x00\x00WAVE"), []byte("fmt \x00\x00\x00\x00")...),
	}
	for name, wav := range cases {
		if _, err := parseWAV(wav); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
