// Package ai содержит тонкие обёртки над вызовами генеративной модели.
//
// Каждая операция — один запрос к hosted-модели с шаблонным промптом
// и валидацией схемы ответа; без оркестрации и многошаговых рассуждений.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrGenerationFailed возвращается, если вызов модели не удался
// или ответ не прошёл валидацию схемы.
var ErrGenerationFailed = errors.New("ai generation failed")

// Client инкапсулирует HTTP-взаимодействие с сервисом генеративной модели.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент модели. Транспортные сбои повторяются
// ограниченное число раз на уровне HTTP-клиента.
func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: rc,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// CoverArtResult описывает результат генерации обложки.
type CoverArtResult struct {
	ImageURL string `json:"imageUrl"`
}

// PriceResult описывает рекомендацию цены трека в VSD.
type PriceResult struct {
	Price     int64  `json:"price"`
	Reasoning string `json:"reasoning"`
}

func (c *Client) generate(ctx context.Context, prompt, format string) (*generateResponse, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", ErrGenerationFailed)
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, Format: format})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %s", ErrGenerationFailed, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %s", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: do request: %s", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var res generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", ErrGenerationFailed, err)
	}

	return &res, nil
}

// GenerateCoverArt генерирует обложку трека по описанию.
func (c *Client) GenerateCoverArt(ctx context.Context, title, genre, description string) (*CoverArtResult, error) {
	prompt := fmt.Sprintf(
		"Generate album cover art for the track %q (genre: %s). Visual direction: %s",
		title, genre, description,
	)

	res, err := c.generate(ctx, prompt, "image")
	if err != nil {
		return nil, err
	}
	if res.ImageURL == "" {
		return nil, fmt.Errorf("%w: response missing imageUrl", ErrGenerationFailed)
	}

	return &CoverArtResult{ImageURL: res.ImageURL}, nil
}

// RecommendPrice запрашивает рекомендацию цены трека в VSD.
func (c *Client) RecommendPrice(ctx context.Context, title, genre string, plays int64) (*PriceResult, error) {
	prompt := fmt.Sprintf(
		"Recommend a licensing price in VSD tokens for the track %q (genre: %s, plays: %d). "+
			"Respond with JSON {\"price\": <integer>, \"reasoning\": <string>}.",
		title, genre, plays,
	)

	res, err := c.generate(ctx, prompt, "json")
	if err != nil {
		return nil, err
	}

	var pr PriceResult
	if err := json.Unmarshal([]byte(res.Text), &pr); err != nil {
		return nil, fmt.Errorf("%w: response is not valid price JSON", ErrGenerationFailed)
	}
	if pr.Price < 0 {
		return nil, fmt.Errorf("%w: negative price in response", ErrGenerationFailed)
	}

	return &pr, nil
}

// LegalAnswer отвечает на юридический вопрос о лицензировании музыки.
func (c *Client) LegalAnswer(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a music licensing legal assistant. Answer concisely, this is not legal advice. Question: %s",
		question,
	)

	res, err := c.generate(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", fmt.Errorf("%w: empty answer", ErrGenerationFailed)
	}

	return res.Text, nil
}

// PartnerReply отвечает на сообщение в партнёрском чате.
func (c *Client) PartnerReply(ctx context.Context, message string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a partnership assistant for the VNDR Music platform. Reply to the artist's message: %s",
		message,
	)

	res, err := c.generate(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", fmt.Errorf("%w: empty reply", ErrGenerationFailed)
	}

	return res.Text, nil
}
