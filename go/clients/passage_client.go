package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// PassageClient fetches typing passages from a quote provider.
type PassageClient struct {
	*BaseClient
}

func NewPassageClient(baseURL string) *PassageClient {
	return &PassageClient{
		BaseClient: NewBaseClient(baseURL),
	}
}

type Quote struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	Language string `json:"language"`
	Length   int    `json:"length"`
}

// GetRandomQuote requests one random quote in the given language, capped at
// maxLength characters. A zero maxLength leaves the cap to the provider.
func (c *PassageClient) GetRandomQuote(ctx context.Context, language string, maxLength int) (*Quote, error) {
	params := url.Values{}
	if language != "" {
		params.Set("language", language)
	}
	if maxLength > 0 {
		params.Set("maxLength", fmt.Sprintf("%d", maxLength))
	}

	endpoint := "/quotes/random"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	if quote.Content == "" {
		return nil, fmt.Errorf("provider returned an empty quote")
	}

	return &quote, nil
}
