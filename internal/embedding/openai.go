package embedding

import "context"

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	baseClient
}

var _ Embedder = (*OpenAI)(nil)

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates a vector embedding for text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openAIRequest{Model: o.model, Input: []string{text}, Dimensions: o.dimensions}
	var resp openAIResponse
	if err := o.post(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fail("no embedding returned")
	}
	return o.check(resp.Data[0].Embedding)
}
