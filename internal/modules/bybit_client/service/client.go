package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/config"
)

var baseURLs = map[models.Network]string{
	models.NetworkMain: "https://api.bybit.com",
	models.NetworkTest: "https://api-testnet.bybit.com",
}

// Client — REST-клиент Bybit v5, умеет только то, что нужно пайплайну: выставить ордер.
type Client struct {
	http       *http.Client
	baseURL    string
	creds      config.Credentials
	recvWindow int
	category   string

	now func() time.Time
}

func NewClient(cfg config.Bybit) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = baseURLs[cfg.Network]
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	recv := cfg.RecvWindow
	if recv <= 0 {
		recv = 5000
	}
	category := cfg.Category
	if category == "" {
		category = "linear"
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    base,
		creds:      cfg.Credentials,
		recvWindow: recv,
		category:   category,
		now:        time.Now,
	}
}

// sign: hex(HMAC_SHA256(secret, timestamp + apiKey + recvWindow + payload)).
func (c *Client) sign(ts, payload string) string {
	h := hmac.New(sha256.New, []byte(c.creds.APISecret))
	h.Write([]byte(ts + c.creds.APIKey + strconv.Itoa(c.recvWindow) + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) setAuthHeaders(req *http.Request, payload string) {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.creds.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.recvWindow))
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, payload))
	req.Header.Set("Content-Type", "application/json")
}
