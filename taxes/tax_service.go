package taxes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	config "github.com/creatorspace/api/configs"
)

// Client calls the external tax-calculation service to get VAT/sales tax for
// a checkout subtotal.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL:    config.Config("TAX_SERVICE_BASE_URL"),
		apiKey:     config.Config("TAX_SERVICE_API_KEY"),
		httpClient: &http.Client{},
	}
}

type taxRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code,omitempty"`
}

type taxResponse struct {
	TaxAmount int64 `json:"tax_amount"`
}

// ComputeTax returns the tax in minor units for an order subtotal shipped to
// the given country. Any non-200 or transport failure is returned as an error
// for the fee calculator to wrap.
func (c *Client) ComputeTax(ctx context.Context, amount int64, country, postalCode string) (int64, error) {
	payload, _ := json.Marshal(taxRequest{
		Amount:     amount,
		Currency:   "USD",
		Country:    country,
		PostalCode: postalCode,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v1/calculate", c.baseURL), bytes.NewBuffer(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tax service returned status %s", resp.Status)
	}

	var taxResp taxResponse
	if err := json.NewDecoder(resp.Body).Decode(&taxResp); err != nil {
		return 0, err
	}

	return taxResp.TaxAmount, nil
}
