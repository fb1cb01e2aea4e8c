// Package llm defines the Provider interface for the language-model stage.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, a
// local Ollama instance) and exposes a uniform streaming interface for the
// turn engines to pull response tokens without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamTokens must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/visema/pkg/types"
)

// Request carries everything the model needs to produce one turn's response.
type Request struct {
	// Text is the user's turn. It becomes the final "user" message after
	// History.
	Text string

	// SystemPrompt is the persona instruction injected before the
	// conversation. Providers that lack a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// History is the prior conversation in order, roles "user"/"assistant".
	History []types.Message

	// Control is the effective turn control. Providers that cannot act on
	// it simply ignore it; emotion typically reaches the model through
	// SystemPrompt instead.
	Control types.TurnControl

	// Temperature controls randomness; zero means provider default.
	Temperature float64

	// MaxTokens caps completion length; zero means provider default.
	MaxTokens int
}

// Chunk is a single token or fragment emitted by a streaming completion.
type Chunk struct {
	// Token is the incremental text. May be empty on a final chunk that
	// only carries a FinishReason.
	Token string

	// FinishReason is set on the final chunk: "stop" for natural end,
	// "length" when MaxTokens was hit, "error" when the upstream failed
	// (Token then holds the error text), "" for non-final chunks.
	FinishReason string
}

// FinishReasonError marks a terminal chunk produced by an upstream failure.
// It is how a stream signals failure distinctly from normal completion.
const FinishReasonError = "error"

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled the stream goroutine stops and
// closes its channel as quickly as possible.
type Provider interface {
	// StreamTokens sends req to the model and returns a read-only channel
	// emitting Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors after
	// the stream opens surface as a Chunk with FinishReason "error"; the
	// error return is non-nil only for failures that prevent the stream
	// from starting. The returned channel is never nil when error is nil.
	StreamTokens(ctx context.Context, req Request) (<-chan Chunk, error)

	// Health probes the backend. Implementations should respect ctx's
	// deadline; callers probe with a short timeout.
	Health(ctx context.Context) types.HealthStatus

	// Capabilities returns static metadata about the underlying model.
	// The result is constant for the lifetime of the Provider.
	Capabilities() types.Capabilities
}
