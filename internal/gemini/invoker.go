// Package gemini drives the generative backend behind the digest pipeline:
// a fallback chain of models, exponential backoff on transient errors, an
// immediate model switch on quota exhaustion, and a bounded tool-calling
// conversation loop that lets the model run web searches.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/metrics"
)

const (
	defaultMaxRetries    = 3
	defaultMaxToolRounds = 3
)

// SearchFunc executes one web search on the model's behalf and returns the
// formatted result text fed back into the conversation.
type SearchFunc func(ctx context.Context, query string, maxResults int) (string, error)

// Options configures an Invoker.
type Options struct {
	// Chain is the ordered model fallback list. Empty means DefaultChain.
	Chain []ModelSpec
	// SearchTool backs the model's web_search capability. Required for
	// Converse, unused by Generate and GenerateStream.
	SearchTool SearchFunc
}

// Invoker sends prompts through the model fallback chain.
type Invoker struct {
	backend    backend
	chain      []ModelSpec
	searchTool SearchFunc

	maxRetries    int
	maxToolRounds int

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewInvoker connects to the generative backend.
func NewInvoker(ctx context.Context, apiKey string, opts Options) (*Invoker, error) {
	b, err := newGeminiBackend(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return newInvoker(b, opts), nil
}

func newInvoker(b backend, opts Options) *Invoker {
	chain := opts.Chain
	if len(chain) == 0 {
		chain = DefaultChain()
	}
	return &Invoker{
		backend:       b,
		chain:         chain,
		searchTool:    opts.SearchTool,
		maxRetries:    defaultMaxRetries,
		maxToolRounds: defaultMaxToolRounds,
		sleep:         sleepContext,
		jitter:        func() float64 { return rand.Float64() * 2 },
	}
}

// Close releases the backend connection.
func (inv *Invoker) Close() error {
	return inv.backend.close()
}

// Generate sends one prompt through the fallback chain and returns the full
// response text.
func (inv *Invoker) Generate(ctx context.Context, promptText string) (string, error) {
	conv := NewConversation(promptText)
	var text string
	err := inv.attempt(ctx, inv.chain, func(spec ModelSpec) error {
		r, genErr := inv.backend.generate(ctx, spec, conv, false)
		if genErr != nil {
			return genErr
		}
		text = r.text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateStream sends one prompt and pushes response chunks to emit in
// arrival order; concatenating the chunks reproduces the returned text.
// A stream that drops mid-response fails without a replay: the chunks
// already pushed cannot be taken back, so a retry would duplicate them.
func (inv *Invoker) GenerateStream(ctx context.Context, promptText string, emit func(chunk string)) (string, error) {
	conv := NewConversation(promptText)
	var text string
	err := inv.attempt(ctx, inv.chain, func(spec ModelSpec) error {
		r, genErr := inv.backend.stream(ctx, spec, conv, false, emit)
		if genErr != nil {
			return genErr
		}
		text = r.text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Converse runs a tool-calling conversation: the model may answer directly
// or request web searches, whose results are fed back for the next round.
// The final reply streams to emit; intermediate rounds do not. After
// maxToolRounds tool executions without a final answer the best partial
// text is returned rather than looping on.
func (inv *Invoker) Converse(ctx context.Context, promptText string, emit func(chunk string)) (string, error) {
	if inv.searchTool == nil {
		return "", fmt.Errorf("no search tool configured")
	}
	chain := toolCapable(inv.chain)
	if len(chain) == 0 {
		return "", fmt.Errorf("no tool-capable model in the chain")
	}

	conv := NewConversation(promptText)
	partial := ""
	streamFinal := false

	for round := 0; round < inv.maxToolRounds; round++ {
		var r *reply
		var chunks []string
		err := inv.attempt(ctx, chain, func(spec ModelSpec) error {
			chunks = chunks[:0]
			var callErr error
			if streamFinal {
				// The reply following a tool result is usually the
				// final answer, so ask for token delivery. Chunks stay
				// buffered until the reply turns out tool-free,
				// flushing a reply that continues the tool loop would
				// leak negotiation text to the consumer.
				r, callErr = inv.backend.stream(ctx, spec, conv, true, func(chunk string) {
					chunks = append(chunks, chunk)
				})
			} else {
				r, callErr = inv.backend.generate(ctx, spec, conv, true)
			}
			return callErr
		})
		if err != nil {
			return "", err
		}

		if r.text != "" {
			partial = r.text
		}

		if r.toolCall == nil {
			conv.AddModelText(r.text)
			if emit != nil {
				if streamFinal {
					for _, chunk := range chunks {
						emit(chunk)
					}
				} else {
					emit(r.text)
				}
			}
			return r.text, nil
		}

		if r.toolCall.name != SearchToolName {
			logger.Error("aborting conversation",
				"tool", r.toolCall.name,
				"kind", Classify(ErrUnknownTool).String(),
				"error", ErrUnknownTool)
			return partial, nil
		}

		if r.text != "" {
			conv.AddModelText(r.text)
		}
		conv.AddToolCall(r.toolCall.name, r.toolCall.args)

		query, maxResults := searchArgs(r.toolCall.args)
		logger.Info("model requested a search", "query", query, "max_results", maxResults)
		resultText, searchErr := inv.searchTool(ctx, query, maxResults)
		if searchErr != nil {
			// The model gets the failure as text and can decide to
			// answer from its own knowledge instead.
			logger.Warn("search tool failed", "error", searchErr)
			resultText = fmt.Sprintf("搜索失败: %v", searchErr)
		}
		if addErr := conv.AddToolResult(resultText); addErr != nil {
			return partial, addErr
		}
		streamFinal = true
	}

	logger.Warn("tool round limit reached, returning partial text", "rounds", inv.maxToolRounds)
	return partial, nil
}

// attempt drives one model call through the fallback chain: quota errors
// advance to the next model with the retry budget reset, other errors back
// off exponentially against the same model.
func (inv *Invoker) attempt(ctx context.Context, chain []ModelSpec, fn func(ModelSpec) error) error {
	modelIndex := 0
	retryCount := 0

	for {
		spec := chain[modelIndex]
		metrics.Global.IncrementModelCalls()
		logger.Debug("calling model", "model", spec.Name, "description", spec.Description)

		err := fn(spec)
		if err == nil {
			return nil
		}

		kind := Classify(err)
		logger.Warn("model call failed", "model", spec.Name, "kind", kind.String(), "error", err)

		if errors.Is(err, errStreamInterrupted) {
			return err
		}

		if kind == KindQuota {
			modelIndex++
			retryCount = 0
			if modelIndex >= len(chain) {
				logger.Error("every model in the chain is out of quota")
				return ErrAllModelsExhausted
			}
			metrics.Global.IncrementModelFallbacks()
			logger.Info("switching model", "model", chain[modelIndex].Name)
			continue
		}

		retryCount++
		if retryCount >= inv.maxRetries {
			return fmt.Errorf("%w: model %s failed after %d attempts: %v",
				ErrAllModelsExhausted, spec.Name, retryCount, err)
		}
		metrics.Global.IncrementModelRetries()

		wait := time.Duration((math.Pow(2, float64(retryCount)) + inv.jitter()) * float64(time.Second))
		logger.Info("retrying model call", "model", spec.Name, "wait", wait.Round(10*time.Millisecond).String(),
			"attempt", retryCount, "max", inv.maxRetries)
		if sleepErr := inv.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
}

func toolCapable(chain []ModelSpec) []ModelSpec {
	capable := make([]ModelSpec, 0, len(chain))
	for _, spec := range chain {
		if spec.SupportsTools {
			capable = append(capable, spec)
		}
	}
	return capable
}

func searchArgs(args map[string]any) (string, int) {
	query, _ := args["query"].(string)
	if query == "" {
		query = "全球热点新闻"
	}
	maxResults := 5
	switch n := args["num_results"].(type) {
	case float64:
		maxResults = int(n)
	case int64:
		maxResults = int(n)
	case int:
		maxResults = n
	}
	return query, maxResults
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
