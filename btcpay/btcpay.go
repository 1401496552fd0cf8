// Package btcpay is a thin client for the parts of the BTCPay Server
// greenfield API that the donation pipeline consumes: invoices, per-invoice
// payment methods and exchange rates.
package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MAGICGrants/campaign-site/service/flags"
)

type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{client: &http.Client{Timeout: 15 * time.Second}}
}

type Invoice struct {
	ID       string            `json:"id"`
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// InvoicePaymentMethod is one payment rail offered on an invoice, carrying
// how much was actually paid with it and at which rate.
type InvoicePaymentMethod struct {
	PaymentMethodID   string `json:"paymentMethodId"`
	Currency          string `json:"currency"`
	Destination       string `json:"destination"`
	Rate              string `json:"rate"`
	Amount            string `json:"amount"`
	Due               string `json:"due"`
	PaymentMethodPaid string `json:"paymentMethodPaid"`
}

type Rate struct {
	CurrencyPair string `json:"currencyPair"`
	Rate         string `json:"rate"`
}

type CreateInvoiceRequest struct {
	Amount   string            `json:"amount,omitempty"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
	Checkout *InvoiceCheckout  `json:"checkout,omitempty"`
}

type InvoiceCheckout struct {
	MonitoringMinutes  int  `json:"monitoringMinutes,omitempty"`
	LazyPaymentMethods bool `json:"lazyPaymentMethods"`
}

func (c *Client) Invoice(ctx context.Context, id string) (*Invoice, error) {
	var invoice Invoice
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/invoices/%s", id), nil, &invoice); err != nil {
		return nil, fmt.Errorf("could not get invoice %s: %w", id, err)
	}
	return &invoice, nil
}

func (c *Client) InvoicePaymentMethods(ctx context.Context, invoiceID string) ([]InvoicePaymentMethod, error) {
	var methods []InvoicePaymentMethod
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/invoices/%s/payment-methods", invoiceID), nil, &methods); err != nil {
		return nil, fmt.Errorf("could not get payment methods for invoice %s: %w", invoiceID, err)
	}
	return methods, nil
}

// Rates fetches crypto-to-fiat exchange rates for pairs like "BTC_USD".
func (c *Client) Rates(ctx context.Context, pairs ...string) ([]Rate, error) {
	q := make(url.Values)
	for _, pair := range pairs {
		q.Add("currencyPair", pair)
	}
	var rates []Rate
	if err := c.do(ctx, http.MethodGet, "/rates?"+q.Encode(), nil, &rates); err != nil {
		return nil, fmt.Errorf("could not get rates: %w", err)
	}
	return rates, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*Invoice, error) {
	var invoice Invoice
	if err := c.do(ctx, http.MethodPost, "/invoices", req, &invoice); err != nil {
		return nil, fmt.Errorf("could not create invoice: %w", err)
	}
	return &invoice, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := fmt.Sprintf("%s/api/v1/stores/%s%s", flags.BTCPayURL.Value(), flags.BTCPayStoreID.Value(), path)

	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+flags.BTCPayAPIKey.Value())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("btcpay responded with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
