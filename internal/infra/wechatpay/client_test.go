package wechatpay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestFen(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"25.50", 2550},
		{"0.01", 1},
		{"19.999", 2000},
		{"100", 10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fen(decimal.RequireFromString(tt.amount)), tt.amount)
	}
}

func TestSign_Deterministic(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "empty": "", "sign": "ignored"}
	s := Sign(params, testKey)

	assert.Len(t, s, 32)
	assert.Equal(t, strings.ToUpper(s), s)
	assert.Equal(t, s, Sign(map[string]string{"a": "1", "b": "2"}, testKey))
	assert.NotEqual(t, s, Sign(map[string]string{"a": "1", "b": "3"}, testKey))
	assert.NotEqual(t, s, Sign(params, "other"))
}

func TestEncodeDecodeXML(t *testing.T) {
	params := map[string]string{"out_trade_no": "ORD1", "body": "a<b&c"}
	body, err := EncodeXML(params)
	require.NoError(t, err)
	assert.Equal(t, "<xml><body>a&lt;b&amp;c</body><out_trade_no>ORD1</out_trade_no></xml>", string(body))

	decoded, err := DecodeXML(body)
	require.NoError(t, err)
	assert.Equal(t, params, decoded)

	cdata, err := DecodeXML([]byte("<xml><return_code><![CDATA[SUCCESS]]></return_code></xml>"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", cdata["return_code"])

	_, err = DecodeXML([]byte("<xml>"))
	assert.Error(t, err)
}

func TestUnifiedOrder_Stub(t *testing.T) {
	c := NewClient(Config{AppID: "wx1", MchID: "m1", APIKey: testKey})

	resp, err := c.UnifiedOrder(context.Background(), UnifiedOrderRequest{
		OrderNumber: "ORD20240101000000001",
		Amount:      decimal.RequireFromString("12.30"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.PrepayID, "prepay_"))
	assert.Equal(t, "prepay_id="+resp.PrepayID, resp.PayParams["package"])
	assert.True(t, Verify(map[string]string{
		"appId":     resp.PayParams["appId"],
		"timeStamp": resp.PayParams["timeStamp"],
		"nonceStr":  resp.PayParams["nonceStr"],
		"package":   resp.PayParams["package"],
		"signType":  resp.PayParams["signType"],
		"sign":      resp.PayParams["paySign"],
	}, testKey))
}

func TestUnifiedOrder_HTTP(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pay/unifiedorder", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		received, _ = DecodeXML(raw)
		w.Write([]byte("<xml><return_code>SUCCESS</return_code><result_code>SUCCESS</result_code><prepay_id>wx_prepay_1</prepay_id></xml>"))
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "wx1", MchID: "m1", APIKey: testKey, NotifyURL: "https://x/notify", BaseURL: srv.URL, Timeout: time.Second})
	resp, err := c.UnifiedOrder(context.Background(), UnifiedOrderRequest{
		OrderNumber: "ORD1",
		Amount:      decimal.RequireFromString("25.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "wx_prepay_1", resp.PrepayID)
	assert.Equal(t, "2550", received["total_fee"])
	assert.Equal(t, "ORD1", received["out_trade_no"])
	assert.True(t, Verify(received, testKey))
}

func TestUnifiedOrder_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<xml><return_code>FAIL</return_code><return_msg>bad sign</return_msg></xml>"))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: testKey, BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.UnifiedOrder(context.Background(), UnifiedOrderRequest{OrderNumber: "ORD1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad sign")
}

func TestRefund_Stub(t *testing.T) {
	c := NewClient(Config{APIKey: testKey})
	resp, err := c.Refund(context.Background(), RefundRequest{OrderNumber: "ORD1", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.RefundID, "refund_"))
}

func signedNotify(t *testing.T, params map[string]string) []byte {
	t.Helper()
	params["sign"] = Sign(params, testKey)
	body, err := EncodeXML(params)
	require.NoError(t, err)
	return body
}

func TestParseNotify(t *testing.T) {
	c := NewClient(Config{APIKey: testKey})

	body := signedNotify(t, map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   "ORD1",
		"transaction_id": "4200001",
		"total_fee":      "2550",
	})
	n, err := c.ParseNotify(body)
	require.NoError(t, err)
	assert.Equal(t, &Notification{OrderNumber: "ORD1", TransactionID: "4200001", TotalFee: 2550, Success: true}, n)
}

func TestParseNotify_Rejects(t *testing.T) {
	c := NewClient(Config{APIKey: testKey})

	tampered := signedNotify(t, map[string]string{"return_code": "SUCCESS", "out_trade_no": "ORD1", "total_fee": "1"})
	tampered = []byte(strings.Replace(string(tampered), "<total_fee>1</total_fee>", "<total_fee>2</total_fee>", 1))

	tests := []struct {
		name string
		body []byte
	}{
		{name: "not xml", body: []byte("hello")},
		{name: "unsigned", body: []byte("<xml><return_code>SUCCESS</return_code><out_trade_no>ORD1</out_trade_no></xml>")},
		{name: "tampered", body: tampered},
		{name: "return fail", body: signedNotify(t, map[string]string{"return_code": "FAIL", "out_trade_no": "ORD1"})},
		{name: "no order number", body: signedNotify(t, map[string]string{"return_code": "SUCCESS"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ParseNotify(tt.body)
			assert.Error(t, err)
		})
	}
}

func TestParseNotify_NoAPIKey(t *testing.T) {
	c := NewClient(Config{})
	params := map[string]string{"return_code": "SUCCESS", "result_code": "SUCCESS", "out_trade_no": "ORD1"}
	params["sign"] = Sign(params, "")
	body, err := EncodeXML(params)
	require.NoError(t, err)

	_, err = c.ParseNotify(body)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestAckXML(t *testing.T) {
	assert.Contains(t, string(AckXML(true, "OK")), "<![CDATA[SUCCESS]]>")
	assert.Contains(t, string(AckXML(false, "bad")), "<![CDATA[FAIL]]>")
}
