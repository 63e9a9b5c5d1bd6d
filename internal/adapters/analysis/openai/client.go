// Package openai implements the analysis collaborator with a chat
// completion forced through a function-call schema, so the model's
// judgment comes back as structured fields rather than prose.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4.1-mini"

	analysisFunctionName = "record_analysis"
	maxResponseBodyLen   = 1 << 20
)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ ports.Analyzer = (*Client)(nil)

func NewClient(apiKey, model, baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai API key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}, nil
}

type analysisArguments struct {
	Reasoning         *string  `json:"reasoning"`
	WebsitesCited     []string `json:"websitesCited"`
	Candidates        []string `json:"candidates"`
	BestCandidate     *string  `json:"bestCandidate"`
	CustomerMentioned *bool    `json:"customerMentioned"`
	CustomerBest      *bool    `json:"customerBest"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model      string           `json:"model"`
	Messages   []chatMessage    `json:"messages"`
	Tools      []map[string]any `json:"tools"`
	ToolChoice map[string]any   `json:"tool_choice"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Analyze(ctx context.Context, customer, rawText string) (domain.Analysis, error) {
	if strings.TrimSpace(customer) == "" {
		return domain.Analysis{}, fmt.Errorf("customer name is empty")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(customer)},
			{Role: "user", Content: "This is what ChatGPT said:" + rawText},
		},
		Tools:      []map[string]any{analysisTool(customer)},
		ToolChoice: map[string]any{"type": "function", "function": map[string]any{"name": analysisFunctionName}},
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encode analysis request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("perform request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyLen))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return domain.Analysis{}, fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode response: %w", err)
	}

	return parseAnalysis(decoded)
}

// parseAnalysis fails loudly on anything malformed or incomplete
// rather than silently defaulting fields.
func parseAnalysis(decoded chatResponse) (domain.Analysis, error) {
	if len(decoded.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("analysis response has no choices")
	}

	toolCalls := decoded.Choices[0].Message.ToolCalls
	if len(toolCalls) == 0 {
		return domain.Analysis{}, fmt.Errorf("analysis response has no tool call")
	}
	call := toolCalls[0].Function
	if call.Name != analysisFunctionName {
		return domain.Analysis{}, fmt.Errorf("unexpected tool call %q", call.Name)
	}

	var args analysisArguments
	decoder := json.NewDecoder(strings.NewReader(call.Arguments))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&args); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis arguments: %w", err)
	}

	switch {
	case args.Reasoning == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing reasoning")
	case args.WebsitesCited == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing websitesCited")
	case args.Candidates == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing candidates")
	case args.BestCandidate == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing bestCandidate")
	case args.CustomerMentioned == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing customerMentioned")
	case args.CustomerBest == nil:
		return domain.Analysis{}, fmt.Errorf("analysis arguments missing customerBest")
	}

	return domain.Analysis{
		Reasoning:         *args.Reasoning,
		CitedSources:      args.WebsitesCited,
		Candidates:        args.Candidates,
		BestCandidate:     *args.BestCandidate,
		CustomerMentioned: *args.CustomerMentioned,
		CustomerBest:      *args.CustomerBest,
	}, nil
}

func systemPrompt(customer string) string {
	return fmt.Sprintf("You will analyze the response below. The customer is %s."+
		"\n1: Give a list of all websites cited as sources in the response."+
		"\n2: List every candidate company or product presented, and which one was presented as the best option."+
		"\n3: Was %s mentioned?"+
		"\n4: Was %s presented as the best option?", customer, customer, customer)
}

func analysisTool(customer string) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        analysisFunctionName,
			"description": "Record the structured analysis of the assistant response.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reasoning": map[string]any{
						"type":        "string",
						"description": "A few sentences explaining your reasoning for your answers",
					},
					"websitesCited": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "List of all websites cited as sources in the response",
					},
					"candidates": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "All candidate companies or products presented in the response",
					},
					"bestCandidate": map[string]any{
						"type":        "string",
						"description": "The candidate presented as the best option, empty if none",
					},
					"customerMentioned": map[string]any{
						"type":        "boolean",
						"description": fmt.Sprintf("Whether %s was mentioned", customer),
					},
					"customerBest": map[string]any{
						"type":        "boolean",
						"description": fmt.Sprintf("Whether %s was presented as the best option", customer),
					},
				},
				"required": []string{"reasoning", "websitesCited", "candidates", "bestCandidate", "customerMentioned", "customerBest"},
			},
		},
	}
}
