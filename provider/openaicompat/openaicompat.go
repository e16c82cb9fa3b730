// Package openaicompat implements provider.Endpoint over the OpenAI chat
// completion wire protocol. Every configured provider (OpenAI, Groq, Mistral,
// vLLM deployments) speaks this protocol at a different base URL.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
	"github.com/seekwell/llmgw/provider"
	"github.com/seekwell/llmgw/utils/array"
)

type Endpoint struct {
	providerName string
	baseUrl      *url.URL
	apiKey       string
	client       *http.Client
	logger       *zap.SugaredLogger
}

func NewEndpoint(providerName string, baseUrl string, apiKey string, client *http.Client, logger *zap.SugaredLogger) (*Endpoint, error) {
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %v", err)
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: URL must have a scheme and host")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Endpoint{
		providerName: providerName,
		baseUrl:      parsedBaseUrl,
		apiKey:       apiKey,
		client:       client,
		logger:       logger,
	}, nil
}

func (p *Endpoint) Name() string {
	return p.providerName
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// requestBody builds the wire payload. Extra entries are merged last, so
// callers can set provider-specific fields or override the standard ones.
func requestBody(model string, request *llmgw.ChatRequest, stream bool) map[string]any {
	messages := array.Map(request.Messages, func(message llmgw.Message) chatMessage {
		return chatMessage{Role: message.Role, Content: message.Content}
	})

	body := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if request.Temperature != 0 {
		body["temperature"] = request.Temperature
	}
	if request.MaxTokens != 0 {
		body["max_tokens"] = request.MaxTokens
	}
	if stream {
		body["stream"] = true
	}
	for key, value := range request.Extra {
		body[key] = value
	}
	return body
}

func (p *Endpoint) send(ctx context.Context, body map[string]any, accept string) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(p.baseUrl.String(), "chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+p.apiKey)
	if accept != "" {
		httpRequest.Header.Set("Accept", accept)
	}

	if p.logger != nil {
		p.logger.Debugw("sending chat completion request",
			"provider", p.providerName, "url", endpointPath, "model", body["model"])
	}

	httpResponse, err := p.client.Do(httpRequest)
	if err != nil {
		return nil, llmgw.TransportError{Err: fmt.Errorf("failed to send request: %v", err)}
	}
	return httpResponse, nil
}

func statusError(statusCode int, body []byte) error {
	if statusCode == http.StatusTooManyRequests {
		return llmgw.ProviderError{
			StatusCode: statusCode,
			Err:        fmt.Errorf("quota exceeded: %s", string(body)),
		}
	}
	return llmgw.ProviderError{
		StatusCode: statusCode,
		Err:        fmt.Errorf("unexpected status code: %d, body: %s", statusCode, string(body)),
	}
}

func (p *Endpoint) Complete(ctx context.Context, model string, request *llmgw.ChatRequest) (*provider.Response, error) {
	httpResponse, err := p.send(ctx, requestBody(model, request, false), "")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, llmgw.TransportError{Err: fmt.Errorf("failed to read response body: %v", err)}
	}

	if httpResponse.StatusCode != http.StatusOK {
		return nil, statusError(httpResponse.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, llmgw.TransportError{Err: fmt.Errorf("failed to decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, llmgw.TransportError{Err: fmt.Errorf("response contains no choices")}
	}

	return &provider.Response{
		Text:      parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}, nil
}

func (p *Endpoint) CompleteStream(ctx context.Context, model string, request *llmgw.ChatRequest, onDelta provider.DeltaFunc) (*provider.Response, error) {
	httpResponse, err := p.send(ctx, requestBody(model, request, true), "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResponse.Body)
		return nil, statusError(httpResponse.StatusCode, body)
	}

	response := &provider.Response{}
	var text strings.Builder

	scanner := bufio.NewScanner(httpResponse.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and SSE comments.
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		data, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if p.logger != nil {
				p.logger.Warnw("failed to parse streaming chunk",
					"provider", p.providerName, "error", err, "data", data)
			}
			continue
		}

		if chunk.Usage != nil {
			response.TokensIn = chunk.Usage.PromptTokens
			response.TokensOut = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		text.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}

		select {
		case <-ctx.Done():
			return nil, llmgw.TransportError{Err: ctx.Err()}
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, llmgw.TransportError{Err: fmt.Errorf("error reading stream: %v", err)}
	}

	response.Text = text.String()
	return response, nil
}
