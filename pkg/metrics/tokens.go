package metrics

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter counts tokens for a model.
type TokenCounter interface {
	Count(model, text string) int
}

// Measure builds a TokenUsage for a prompt/completion pair.
func Measure(counter TokenCounter, model, prompt, completion string) TokenUsage {
	if counter == nil {
		counter = EstimateCounter{}
	}
	p := counter.Count(model, prompt)
	c := counter.Count(model, completion)
	return TokenUsage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

// TiktokenCounter counts with the OpenAI BPE tables. Models tiktoken does not
// know (claude, llama, ...) are approximated with cl100k_base; if no encoding
// can be loaded at all the rune based estimate is used.
type TiktokenCounter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTiktokenCounter constructs a counter with an empty encoding cache.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		enc = nil
	}
	// failures are cached too so a missing BPE table is not fetched per call
	c.encodings[model] = enc
	return enc
}

// EstimateCounter approximates four characters per token.
type EstimateCounter struct{}

// Count implements TokenCounter.
func (EstimateCounter) Count(_ string, text string) int {
	return EstimateTokens(text)
}

// EstimateTokens returns ceil(runes/4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
