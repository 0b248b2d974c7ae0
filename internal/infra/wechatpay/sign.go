package wechatpay

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Sign computes the v2 MD5 signature over the non-empty params, excluding sign itself.
func Sign(params map[string]string, apiKey string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&key=")
	b.WriteString(apiKey)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func Verify(params map[string]string, apiKey string) bool {
	got := params["sign"]
	return got != "" && got == Sign(params, apiKey)
}

// EncodeXML renders params as a flat <xml> document with sorted elements.
func EncodeXML(params map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<xml>")
	for _, k := range keys {
		fmt.Fprintf(&buf, "<%s>", k)
		if err := xml.EscapeText(&buf, []byte(params[k])); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "</%s>", k)
	}
	buf.WriteString("</xml>")
	return buf.Bytes(), nil
}

// DecodeXML reads a flat <xml> document into a map. CDATA sections are unwrapped.
func DecodeXML(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	out := make(map[string]string)
	depth := 0
	var key string
	var val strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				key = t.Name.Local
				val.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				val.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				out[key] = strings.TrimSpace(val.String())
			}
			depth--
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decode xml: empty document")
	}
	return out, nil
}

// AckXML is the body the payment platform expects in reply to a notify.
func AckXML(ok bool, msg string) []byte {
	code := "SUCCESS"
	if !ok {
		code = "FAIL"
	}
	return []byte(fmt.Sprintf("<xml><return_code><![CDATA[%s]]></return_code><return_msg><![CDATA[%s]]></return_msg></xml>", code, msg))
}
