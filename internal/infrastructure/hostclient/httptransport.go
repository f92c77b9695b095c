// Package hostclient implements the inference-host transport over HTTP.
// Hosts expose a prompt endpoint; a registry service lists who is online.
package hostclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

const (
	defaultPromptTimeout = 120 * time.Second
	// Maximum response body size for host replies (4MB)
	maxHostResponseSize = 4 << 20
)

// HTTPTransport implements hosttransport.Transport. Prompt calls go to the
// session host's own endpoint; discovery goes to the registry.
type HTTPTransport struct {
	registryURL string
	httpClient  *http.Client
	logger      logger.Interface
}

func NewHTTPTransport(registryURL string, promptTimeout time.Duration, log logger.Interface) *HTTPTransport {
	if promptTimeout <= 0 {
		promptTimeout = defaultPromptTimeout
	}
	return &HTTPTransport{
		registryURL: registryURL,
		httpClient: &http.Client{
			Timeout: promptTimeout,
		},
		logger: log,
	}
}

type promptPayload struct {
	LedgerSessionID uint64          `json:"ledger_session_id"`
	Model           string          `json:"model"`
	Prompt          string          `json:"prompt"`
	History         []promptMessage `json:"history,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
}

type promptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type promptReply struct {
	Content string `json:"content"`
	Tokens  int64  `json:"tokens"`
}

type streamChunk struct {
	Content string `json:"content"`
	Tokens  int64  `json:"tokens"`
	Final   bool   `json:"final"`
}

type hostEntry struct {
	Address       string   `json:"address"`
	Endpoint      string   `json:"endpoint"`
	Models        []string `json:"models"`
	PricePerToken int64    `json:"price_per_token"`
	Online        bool     `json:"online"`
}

func (t *HTTPTransport) SendPrompt(ctx context.Context, endpoint string, req hosttransport.PromptRequest) (*hosttransport.PromptResponse, error) {
	resp, err := t.postPrompt(ctx, endpoint, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHostResponseSize))
	if err != nil {
		return nil, apperrors.NewHostUnavailableError("failed to read host reply", err.Error())
	}

	var reply promptReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, apperrors.NewHostUnavailableError("malformed host reply", err.Error())
	}

	return &hosttransport.PromptResponse{
		Content: reply.Content,
		Tokens:  reply.Tokens,
	}, nil
}

// StreamPrompt reads newline-delimited JSON chunks from the host, invoking
// onChunk for each. The returned response carries the host's final token
// count, which is what billing uses.
func (t *HTTPTransport) StreamPrompt(ctx context.Context, endpoint string, req hosttransport.PromptRequest, onChunk func(hosttransport.Chunk)) (*hosttransport.PromptResponse, error) {
	resp, err := t.postPrompt(ctx, endpoint, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	var finalTokens int64

	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxHostResponseSize))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, apperrors.NewHostUnavailableError("malformed stream chunk", err.Error())
		}

		content.WriteString(chunk.Content)
		if chunk.Final {
			finalTokens = chunk.Tokens
		}
		if onChunk != nil {
			onChunk(hosttransport.Chunk{
				Content: chunk.Content,
				Tokens:  chunk.Tokens,
				Final:   chunk.Final,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewHostUnavailableError("host stream interrupted", err.Error())
	}

	return &hosttransport.PromptResponse{
		Content: content.String(),
		Tokens:  finalTokens,
	}, nil
}

func (t *HTTPTransport) DiscoverHosts(ctx context.Context, model string) ([]hosttransport.HostInfo, error) {
	u := t.registryURL + "/v1/hosts"
	if model != "" {
		u += "?model=" + url.QueryEscape(model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewHostUnavailableError("host registry unreachable", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewHostUnavailableError(
			fmt.Sprintf("host registry returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHostResponseSize))
	if err != nil {
		return nil, apperrors.NewHostUnavailableError("failed to read registry response", err.Error())
	}

	var entries []hostEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, apperrors.NewHostUnavailableError("malformed registry response", err.Error())
	}

	hosts := make([]hosttransport.HostInfo, 0, len(entries))
	for _, e := range entries {
		hosts = append(hosts, hosttransport.HostInfo{
			Address:       e.Address,
			Endpoint:      e.Endpoint,
			Models:        e.Models,
			PricePerToken: e.PricePerToken,
			Online:        e.Online,
		})
	}
	return hosts, nil
}

func (t *HTTPTransport) postPrompt(ctx context.Context, endpoint string, req hosttransport.PromptRequest, stream bool) (*http.Response, error) {
	payload := promptPayload{
		LedgerSessionID: req.LedgerSessionID,
		Model:           req.Model,
		Prompt:          req.Prompt,
		Stream:          stream,
	}
	for _, m := range req.History {
		payload.History = append(payload.History, promptMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/prompt", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewHostUnavailableError("host unreachable", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.logger.Warnw("host rejected prompt",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(body))
		return nil, apperrors.NewHostUnavailableError(
			fmt.Sprintf("host returned status %d", resp.StatusCode))
	}
	return resp, nil
}
