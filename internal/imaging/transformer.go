package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoImage is returned when the model answers without an image part.
var ErrNoImage = errors.New("generative model returned no image")

// TransformRequest is one enhancement call.
type TransformRequest struct {
	Image     []byte
	MimeType  string
	Prompt    string
	Style     string
	Upscaling string
}

// TransformResult is the generated image.
type TransformResult struct {
	Image    []byte
	MimeType string
}

// checkResp returns an error carrying the upstream body when the status is
// not 2xx.
func checkResp(resp *http.Response, service, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("%s %s returned %d: %s", service, path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(baseURL, apiKey, model string) *GeminiClient {
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Transform sends the image with its instructions and returns the first
// image part of the answer.
func (c *GeminiClient) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	path := "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"

	var body geminiRequest
	body.Contents = []geminiContent{{
		Role: "user",
		Parts: []geminiPart{
			{Text: instructions(req)},
			{InlineData: &geminiInlineData{
				MimeType: req.MimeType,
				Data:     base64.StdEncoding.EncodeToString(req.Image),
			}},
		},
	}}
	body.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: encode: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkResp(resp, "gemini", path); err != nil {
		return nil, err
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gemini %s: decode: %w", path, err)
	}

	for _, cand := range result.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini %s: decode image: %w", path, err)
			}
			mimeType := part.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return &TransformResult{Image: data, MimeType: mimeType}, nil
		}
	}
	return nil, ErrNoImage
}

func instructions(req TransformRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.Style != "" && req.Style != "original" {
		fmt.Fprintf(&b, "\nRender the image in this style: %s.", strings.ReplaceAll(req.Style, "_", " "))
	}
	if req.Upscaling != "" && req.Upscaling != "1x" {
		fmt.Fprintf(&b, "\nUpscale the output to %s of the input resolution.", req.Upscaling)
	}
	return b.String()
}
