package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/tracing"
)

// NewHTTPClient returns the client shared by every adapter. The timeout bounds
// each provider round trip.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// call sends a JSON request and decodes a 2xx JSON response into out. Any
// transport failure or non-2xx status is GatewayUnavailable.
func call(ctx context.Context, hc *http.Client, rail Rail, method, url string, headers map[string]string, body, out any) error {
	ctx, span := tracing.Tracer().Start(ctx, "gateway."+string(rail)+".initiate")
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method))

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", rail, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", rail, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return apperr.Wrap(apperr.KindGatewayUnavailable, string(rail)+" unreachable", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindGatewayUnavailable, "read "+string(rail)+" response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return apperr.Newf(apperr.KindGatewayUnavailable, "%s returned %s", rail, resp.Status).
			WithDetail("body", truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindGatewayUnavailable, "decode "+string(rail)+" response", err)
	}
	return nil
}

// verifyHMAC checks a hex HMAC-SHA256 of body. An empty secret disables the
// check.
func verifyHMAC(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	sig := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return apperr.New(apperr.KindInvalidSignature, "missing or malformed signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperr.InvalidSignature
	}
	return nil
}

// sign produces the signature verifyHMAC accepts.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func callbackURL(base string, rail Rail) string {
	return strings.TrimRight(base, "/") + "/api/webhooks/" + string(rail)
}
