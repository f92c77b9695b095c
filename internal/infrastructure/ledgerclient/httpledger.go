// Package ledgerclient talks to the escrow relay, the service that submits
// session-ledger contract calls and reports their confirmation.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inferpay/inferpay/internal/application/session/ledger"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

const (
	relayRequestTimeout = 15 * time.Second
	// Maximum response body size for relay API (1MB)
	maxRelayResponseSize = 1 << 20
)

// HTTPLedger implements ledger.Ledger against the escrow relay's REST API.
type HTTPLedger struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

func NewHTTPLedger(baseURL string, timeout time.Duration, log logger.Interface) *HTTPLedger {
	if timeout <= 0 {
		timeout = relayRequestTimeout
	}
	return &HTTPLedger{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

type openSessionPayload struct {
	ClientAddress string `json:"client_address"`
	HostAddress   string `json:"host_address"`
	Token         string `json:"token"`
	DepositAmount int64  `json:"deposit_amount"`
	PricePerToken int64  `json:"price_per_token"`
	ExpiresAt     int64  `json:"expires_at"`
}

type checkpointPayload struct {
	SessionID   uint64 `json:"session_id"`
	TotalTokens int64  `json:"total_tokens"`
	TotalCost   int64  `json:"total_cost"`
}

type settlePayload struct {
	SessionID uint64 `json:"session_id"`
	FinalCost int64  `json:"final_cost"`
}

type receiptPayload struct {
	SessionID   uint64 `json:"session_id,omitempty"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	ConfirmedAt int64  `json:"confirmed_at"`
}

type statusPayload struct {
	SessionID     uint64 `json:"session_id"`
	Active        bool   `json:"active"`
	Settled       bool   `json:"settled"`
	DepositAmount int64  `json:"deposit_amount"`
	SpentAmount   int64  `json:"spent_amount"`
	HostAddress   string `json:"host_address"`
}

func (l *HTTPLedger) OpenSession(ctx context.Context, params ledger.OpenParams) (uint64, *ledger.Receipt, error) {
	payload := openSessionPayload{
		ClientAddress: params.ClientAddress,
		HostAddress:   params.HostAddress,
		Token:         params.Token.String(),
		DepositAmount: params.DepositAmount,
		PricePerToken: params.PricePerToken,
		ExpiresAt:     params.ExpiresAt.Unix(),
	}

	var receipt receiptPayload
	if err := l.post(ctx, "/v1/sessions", payload, &receipt); err != nil {
		return 0, nil, err
	}

	l.logger.Infow("ledger session opened",
		"ledger_session_id", receipt.SessionID,
		"tx_hash", receipt.TxHash,
		"block_number", receipt.BlockNumber)

	return receipt.SessionID, receiptFromPayload(receipt), nil
}

func (l *HTTPLedger) SubmitCheckpoint(ctx context.Context, cp ledger.Checkpoint) (*ledger.Receipt, error) {
	payload := checkpointPayload{
		SessionID:   cp.SessionID,
		TotalTokens: cp.TotalTokens,
		TotalCost:   cp.TotalCost,
	}

	var receipt receiptPayload
	path := fmt.Sprintf("/v1/sessions/%d/checkpoints", cp.SessionID)
	if err := l.post(ctx, path, payload, &receipt); err != nil {
		return nil, err
	}
	return receiptFromPayload(receipt), nil
}

func (l *HTTPLedger) Settle(ctx context.Context, sessionID uint64, finalCost int64) (*ledger.Receipt, error) {
	payload := settlePayload{
		SessionID: sessionID,
		FinalCost: finalCost,
	}

	var receipt receiptPayload
	path := fmt.Sprintf("/v1/sessions/%d/settle", sessionID)
	if err := l.post(ctx, path, payload, &receipt); err != nil {
		return nil, err
	}

	l.logger.Infow("ledger session settled",
		"ledger_session_id", sessionID,
		"tx_hash", receipt.TxHash)

	return receiptFromPayload(receipt), nil
}

func (l *HTTPLedger) SessionStatus(ctx context.Context, sessionID uint64) (*ledger.SessionStatus, error) {
	url := fmt.Sprintf("%s/v1/sessions/%d", l.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var status statusPayload
	if err := l.do(req, &status); err != nil {
		return nil, err
	}

	return &ledger.SessionStatus{
		SessionID:     status.SessionID,
		Active:        status.Active,
		Settled:       status.Settled,
		DepositAmount: status.DepositAmount,
		SpentAmount:   status.SpentAmount,
		HostAddress:   status.HostAddress,
	}, nil
}

func (l *HTTPLedger) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return l.do(req, out)
}

func (l *HTTPLedger) do(req *http.Request, out any) error {
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return apperrors.NewLedgerTimeoutError("escrow relay unreachable", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponseSize))
	if err != nil {
		return apperrors.NewLedgerTimeoutError("failed to read relay response", err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError("ledger session not found")
	case resp.StatusCode >= 400:
		l.logger.Warnw("relay call rejected",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"body", string(body))
		return apperrors.NewLedgerTimeoutError(
			fmt.Sprintf("relay returned status %d", resp.StatusCode), string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewLedgerTimeoutError("malformed relay response", err.Error())
	}
	return nil
}

func receiptFromPayload(p receiptPayload) *ledger.Receipt {
	return &ledger.Receipt{
		TxHash:      p.TxHash,
		BlockNumber: p.BlockNumber,
		ConfirmedAt: time.Unix(p.ConfirmedAt, 0).UTC(),
	}
}
