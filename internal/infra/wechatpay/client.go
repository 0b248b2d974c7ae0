package wechatpay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppID     string
	MchID     string
	APIKey    string
	NotifyURL string
	// BaseURL of the payment API. Empty selects the local stub.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

type UnifiedOrderRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Description string
	ClientIP    string
	OpenID      string
}

type UnifiedOrderResponse struct {
	PrepayID string
	NonceStr string
	// PayParams are handed to the mini-program to open the payment sheet.
	PayParams map[string]string
}

type RefundRequest struct {
	OrderNumber   string
	TransactionID string
	Amount        decimal.Decimal
}

type RefundResponse struct {
	RefundID string
}

// Notification is a verified payment callback.
type Notification struct {
	OrderNumber   string
	TransactionID string
	TotalFee      int64
	Success       bool
}

// Fen converts yuan to the integer fen amount the API expects.
func Fen(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func NonceStr() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *Client) stubbed() bool {
	return c.cfg.BaseURL == ""
}

func (c *Client) UnifiedOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResponse, error) {
	nonce := NonceStr()
	params := map[string]string{
		"appid":            c.cfg.AppID,
		"mch_id":           c.cfg.MchID,
		"nonce_str":        nonce,
		"body":             req.Description,
		"out_trade_no":     req.OrderNumber,
		"total_fee":        strconv.FormatInt(Fen(req.Amount), 10),
		"spbill_create_ip": req.ClientIP,
		"notify_url":       c.cfg.NotifyURL,
		"trade_type":       "JSAPI",
		"openid":           req.OpenID,
	}
	params["sign"] = Sign(params, c.cfg.APIKey)

	var prepayID string
	if c.stubbed() {
		prepayID = "prepay_" + NonceStr()
	} else {
		resp, err := c.post(ctx, "/pay/unifiedorder", params)
		if err != nil {
			return nil, err
		}
		prepayID = resp["prepay_id"]
		if prepayID == "" {
			return nil, fmt.Errorf("unified order returned no prepay_id")
		}
	}

	return &UnifiedOrderResponse{
		PrepayID:  prepayID,
		NonceStr:  nonce,
		PayParams: c.payParams(prepayID),
	}, nil
}

func (c *Client) payParams(prepayID string) map[string]string {
	p := map[string]string{
		"appId":     c.cfg.AppID,
		"timeStamp": strconv.FormatInt(c.now().Unix(), 10),
		"nonceStr":  NonceStr(),
		"package":   "prepay_id=" + prepayID,
		"signType":  "MD5",
	}
	p["paySign"] = Sign(p, c.cfg.APIKey)
	return p
}

func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	fee := strconv.FormatInt(Fen(req.Amount), 10)
	params := map[string]string{
		"appid":          c.cfg.AppID,
		"mch_id":         c.cfg.MchID,
		"nonce_str":      NonceStr(),
		"out_trade_no":   req.OrderNumber,
		"transaction_id": req.TransactionID,
		"out_refund_no":  "R" + req.OrderNumber,
		"total_fee":      fee,
		"refund_fee":     fee,
	}
	params["sign"] = Sign(params, c.cfg.APIKey)

	if c.stubbed() {
		return &RefundResponse{RefundID: "refund_" + NonceStr()}, nil
	}
	resp, err := c.post(ctx, "/secapi/pay/refund", params)
	if err != nil {
		return nil, err
	}
	return &RefundResponse{RefundID: resp["refund_id"]}, nil
}

// ErrNoAPIKey is returned by ParseNotify when no merchant key is configured,
// since any caller could then produce a valid signature.
var ErrNoAPIKey = errors.New("wechat pay api key not configured")

// ParseNotify decodes a payment callback and verifies its signature.
func (c *Client) ParseNotify(body []byte) (*Notification, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	params, err := DecodeXML(body)
	if err != nil {
		return nil, err
	}
	if !Verify(params, c.cfg.APIKey) {
		return nil, fmt.Errorf("notify signature mismatch")
	}
	if params["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("notify return_code %s: %s", params["return_code"], params["return_msg"])
	}
	n := &Notification{
		OrderNumber:   params["out_trade_no"],
		TransactionID: params["transaction_id"],
		Success:       params["result_code"] == "SUCCESS",
	}
	if n.OrderNumber == "" {
		return nil, fmt.Errorf("notify missing out_trade_no")
	}
	if fee := params["total_fee"]; fee != "" {
		n.TotalFee, err = strconv.ParseInt(fee, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("notify total_fee: %w", err)
		}
	}
	return n, nil
}

func (c *Client) post(ctx context.Context, path string, params map[string]string) (map[string]string, error) {
	body, err := EncodeXML(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wechat pay returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	out, err := DecodeXML(raw)
	if err != nil {
		return nil, err
	}
	if out["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("wechat pay %s: %s", path, out["return_msg"])
	}
	if out["result_code"] != "" && out["result_code"] != "SUCCESS" {
		return nil, fmt.Errorf("wechat pay %s: %s %s", path, out["err_code"], out["err_code_des"])
	}
	return out, nil
}
