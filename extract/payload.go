package extract

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ysmood/gson"
)

var (
	errNoParam = errors.New("payload parameter missing")
	errNoField = errors.New("payload field missing or empty")
)

// ValueFromURL decodes the base64 JSON payload carried in the query
// parameter param of rawURL and returns field as a price. Empty, zero and
// false values count as missing.
func ValueFromURL(rawURL, param, field string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	encoded := u.Query().Get(param)
	if encoded == "" {
		return "", errNoParam
	}

	raw, err := decodeBase64(encoded)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", param, err)
	}

	if !json.Valid(raw) {
		return "", fmt.Errorf("%s payload is not json", param)
	}
	v, ok := gson.NewFrom(string(raw)).Gets(field)
	if !ok {
		return "", errNoField
	}

	s := scalar(v.Val())
	if s == "" || s == "0" {
		return "", errNoField
	}
	if price, ok := ParsePrice(s); ok {
		return price, nil
	}
	return Currency + s, nil
}

// decodeBase64 accepts padded and unpadded, standard and URL-safe input.
// Query decoding turns '+' into ' ', so spaces are restored first.
func decodeBase64(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "+")
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func scalar(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "true"
		}
		return ""
	default:
		return ""
	}
}
