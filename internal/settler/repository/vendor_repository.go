package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang-predict-settler/pkg/config"
	"golang-predict-settler/pkg/logger"
)

// VendorRepository mints redemption codes at the external rewards vendor.
// The call is idempotent on the vendor side keyed by saga id, so redelivered
// saga steps may safely retry it.
type VendorRepository interface {
	IssueCode(ctx context.Context, sagaID, sku string) (string, error)
}

type issueCodeRequest struct {
	RequestID string `json:"request_id"`
	SKU       string `json:"sku"`
}

type issueCodeResponse struct {
	Code string `json:"code"`
}

// NewVendorRepository creates an HTTP-backed vendor repository.
func NewVendorRepository(cfg config.Vendor, log *logger.Logger) (VendorRepository, error) {
	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid vendor timeout: %w", err)
		}
		timeout = parsed
	}
	return &vendorRepository{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

type vendorRepository struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

func (r *vendorRepository) IssueCode(ctx context.Context, sagaID, sku string) (string, error) {
	body, err := json.Marshal(issueCodeRequest{RequestID: sagaID, SKU: sku})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/codes", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vendor call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}

	var out issueCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode vendor response: %w", err)
	}
	if out.Code == "" {
		return "", fmt.Errorf("vendor returned empty code")
	}

	r.logger.Info("Vendor issued redemption code", logger.Field("saga_id", sagaID), logger.Field("sku", sku))
	return out.Code, nil
}
