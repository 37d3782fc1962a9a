// Package receipts реализует проверку чеков покупок у Apple и Google.
package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// ErrUnsupportedPlatform возвращается для неизвестной платформы покупки.
var ErrUnsupportedPlatform = errors.New("unsupported purchase platform")

const (
	appleProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	appleSandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
	googleAPIURL       = "https://androidpublisher.googleapis.com/androidpublisher/v3"

	// Код ответа Apple для чека из песочницы, отправленного на боевой адрес.
	appleStatusSandboxReceipt = 21007
)

// Client проверяет чеки через HTTP API платёжных платформ.
type Client struct {
	cfg        config.Receipts
	appleURL   string
	googleURL  string
	httpClient *http.Client
}

// NewClient создаёт новый клиент проверки чеков.
func NewClient(cfg config.Receipts) *Client {
	return &Client{
		cfg:        cfg,
		appleURL:   appleProductionURL,
		googleURL:  googleAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify проверяет чек на указанной платформе.
func (c *Client) Verify(ctx context.Context, platform, receipt string) (*Result, error) {
	switch platform {
	case models.PlatformApple:
		return c.verifyApple(ctx, receipt)
	case models.PlatformGoogle:
		return c.verifyGoogle(ctx, receipt)
	default:
		return nil, ErrUnsupportedPlatform
	}
}

func (c *Client) postAppleVerify(ctx context.Context, url, receipt string) (*appleVerifyResponse, error) {
	var buf bytes.Buffer
	body := appleVerifyRequest{
		ReceiptData: receipt,
		Password:    c.cfg.AppleSharedSecret,
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var verifyResp appleVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return nil, err
	}
	return &verifyResp, nil
}

// verifyApple проверяет чек через verifyReceipt. Чек из песочницы
// перенаправляется на адрес песочницы, как того требует Apple.
func (c *Client) verifyApple(ctx context.Context, receipt string) (*Result, error) {
	const op = "receipts.verifyApple"

	verifyResp, err := c.postAppleVerify(ctx, c.appleURL, receipt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if verifyResp.Status == appleStatusSandboxReceipt {
		verifyResp, err = c.postAppleVerify(ctx, appleSandboxURL, receipt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if verifyResp.Status != 0 || len(verifyResp.LatestReceiptInfo) == 0 {
		return &Result{Valid: false}, nil
	}

	latest := verifyResp.LatestReceiptInfo[len(verifyResp.LatestReceiptInfo)-1]
	result := &Result{
		Valid:     true,
		ProductID: latest.ProductID,
	}
	if ms, parseErr := strconv.ParseInt(latest.ExpiresDateMS, 10, 64); parseErr == nil {
		expires := time.UnixMilli(ms).UTC()
		if time.Now().After(expires) {
			result.Valid = false
		}
		result.ExpiresAt = &expires
	}
	return result, nil
}

// verifyGoogle проверяет покупку через androidpublisher. Чек передается
// в виде productID:purchaseToken.
func (c *Client) verifyGoogle(ctx context.Context, receipt string) (*Result, error) {
	const op = "receipts.verifyGoogle"

	productID, purchaseToken, found := strings.Cut(receipt, ":")
	if !found || productID == "" || purchaseToken == "" {
		return &Result{Valid: false}, nil
	}

	url := fmt.Sprintf("%s/applications/%s/purchases/subscriptions/%s/tokens/%s",
		c.googleURL, c.cfg.GooglePackageName, productID, purchaseToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.GoogleAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return &Result{Valid: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}

	var subResp googleSubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&subResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &Result{
		Valid:     true,
		ProductID: productID,
	}
	if ms, parseErr := strconv.ParseInt(subResp.ExpiryTimeMillis, 10, 64); parseErr == nil {
		expires := time.UnixMilli(ms).UTC()
		if time.Now().After(expires) {
			result.Valid = false
		}
		result.ExpiresAt = &expires
	}
	return result, nil
}
