package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	config "github.com/creatorspace/api/configs"
	"github.com/creatorspace/api/services"
)

// PayPalClient talks to the PayPal Payouts API. One instance is shared by the
// whole process; the OAuth token is cached until shortly before expiry.
type PayPalClient struct {
	apiBase      string
	clientID     string
	clientSecret string
	webhookID    string

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time

	httpClient *http.Client
}

func NewPayPalClient() *PayPalClient {
	return &PayPalClient{
		apiBase:      config.Config("PAYPAL_API_BASE_URL"),
		clientID:     config.Config("PAYPAL_CLIENT_ID"),
		clientSecret: config.Config("PAYPAL_CLIENT_SECRET"),
		webhookID:    config.Config("PAYPAL_WEBHOOK_ID"),
		httpClient:   &http.Client{},
	}
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	p.tokenMutex.RLock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		token := p.token
		p.tokenMutex.RUnlock()
		return token, nil
	}
	p.tokenMutex.RUnlock()

	p.tokenMutex.Lock()
	defer p.tokenMutex.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	reqBody := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v1/oauth2/token", p.apiBase), reqBody)
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token, status: %s", resp.Status)
	}

	var tokenResp accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	p.token = tokenResp.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return p.token, nil
}

type payoutBatchResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

// SendBatchPayout submits a single-item payout batch. The caller's batch id is
// sent as sender_batch_id, which PayPal treats as an idempotency key: retrying
// with the same id lands on the same batch instead of paying twice.
func (p *PayPalClient) SendBatchPayout(ctx context.Context, batch services.PayoutBatch) (*services.PayoutBatchResult, error) {
	accessToken, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": batch.BatchID,
			"email_subject":   "You have a payout!",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"receiver":       batch.Receiver,
				"note":           batch.Note,
				"sender_item_id": batch.BatchID,
				"amount": map[string]string{
					"currency": batch.Currency,
					"value":    fmt.Sprintf("%d.%02d", batch.Amount/100, batch.Amount%100),
				},
			},
		},
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v1/payments/payouts", p.apiBase), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return &services.PayoutBatchResult{HTTPStatus: resp.StatusCode},
			fmt.Errorf("failed to create payout batch: %s", string(respBody))
	}

	var batchResp payoutBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, err
	}

	return &services.PayoutBatchResult{
		HTTPStatus:      resp.StatusCode,
		ProviderBatchID: batchResp.BatchHeader.PayoutBatchID,
	}, nil
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal whether a webhook delivery is genuine.
// The transmission headers come off the incoming request; rawBody must be the
// unmodified request body.
func (p *PayPalClient) VerifyWebhookSignature(ctx context.Context, headers map[string]string, rawBody []byte) (bool, error) {
	accessToken, err := p.getAccessToken(ctx)
	if err != nil {
		return false, err
	}

	payload := map[string]interface{}{
		"auth_algo":         headers["Paypal-Auth-Algo"],
		"cert_url":          headers["Paypal-Cert-Url"],
		"transmission_id":   headers["Paypal-Transmission-Id"],
		"transmission_sig":  headers["Paypal-Transmission-Sig"],
		"transmission_time": headers["Paypal-Transmission-Time"],
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(rawBody),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v1/notifications/verify-webhook-signature", p.apiBase), bytes.NewBuffer(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("signature verification call failed, status: %s", resp.Status)
	}

	var verifyResp verifySignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return false, err
	}

	return verifyResp.VerificationStatus == "SUCCESS", nil
}
