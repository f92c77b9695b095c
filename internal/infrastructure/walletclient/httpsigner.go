// Package walletclient implements the signer port against a local wallet
// bridge. The bridge owns the private key and may surface an interactive
// approval prompt, so calls can block until the user responds.
package walletclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inferpay/inferpay/internal/domain/grant"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

const (
	// Approval prompts wait on a human; give them room.
	walletRequestTimeout  = 5 * time.Minute
	maxWalletResponseSize = 1 << 20
)

// HTTPSigner implements signer.Signer against the wallet bridge's REST API.
type HTTPSigner struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

func NewHTTPSigner(baseURL string, log logger.Interface) *HTTPSigner {
	return &HTTPSigner{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: walletRequestTimeout,
		},
		logger: log,
	}
}

type addressReply struct {
	Address string `json:"address"`
}

type sendReply struct {
	TxHash string `json:"tx_hash"`
}

func (s *HTTPSigner) Address(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/address", nil)
	if err != nil {
		return "", err
	}

	var reply addressReply
	if err := s.do(req, &reply); err != nil {
		return "", err
	}
	if reply.Address == "" {
		return "", apperrors.NewAuthorizationDeniedError("wallet has no connected account")
	}
	return reply.Address, nil
}

func (s *HTTPSigner) AuthorizeGrant(ctx context.Context, authReq grant.AuthorizationRequest) error {
	return s.post(ctx, "/v1/grants/authorize", authReq, nil)
}

func (s *HTTPSigner) SignAndSend(ctx context.Context, bundle grant.CallBundle) (string, error) {
	var reply sendReply
	if err := s.post(ctx, "/v1/transactions", bundle, &reply); err != nil {
		return "", err
	}

	s.logger.Infow("call bundle sent", "tx_hash", reply.TxHash, "calls", len(bundle.Calls))
	return reply.TxHash, nil
}

func (s *HTTPSigner) SwitchNetwork(ctx context.Context, chainID uint64) error {
	payload := map[string]uint64{"chain_id": chainID}
	return s.post(ctx, "/v1/network/switch", payload, nil)
}

func (s *HTTPSigner) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req, out)
}

func (s *HTTPSigner) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperrors.NewAuthorizationDeniedError("wallet bridge unreachable", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWalletResponseSize))
	if err != nil {
		return apperrors.NewAuthorizationDeniedError("failed to read wallet response", err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// The user rejected the prompt.
		return apperrors.NewAuthorizationDeniedError("wallet rejected the request", string(body))
	case resp.StatusCode >= 400:
		s.logger.Warnw("wallet call failed",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"body", string(body))
		return apperrors.NewAuthorizationDeniedError(
			fmt.Sprintf("wallet returned status %d", resp.StatusCode), string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewAuthorizationDeniedError("malformed wallet response", err.Error())
	}
	return nil
}
