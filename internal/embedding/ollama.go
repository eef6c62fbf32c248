package embedding

import "context"

// Ollama calls the Ollama /api/embeddings endpoint.
type Ollama struct {
	baseClient
}

var _ Embedder = (*Ollama)(nil)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates a vector embedding for text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaResponse
	if err := o.post(ctx, "/api/embeddings", ollamaRequest{Model: o.model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	return o.check(resp.Embedding)
}
