package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

var ErrSinkNotConfigured = errors.New("sink not configured")

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

// Sink pushes computed reports to a downstream endpoint (slide generator,
// BI webhook).
type Sink struct {
	c      HTTPClient
	url    string
	secret string
}

func NewSink(c HTTPClient, url, secret string) *Sink {
	return &Sink{c: c, url: url, secret: secret}
}

func (s *Sink) Configured() bool { return s.url != "" && s.secret != "" }

// Export posts the report as JSON and returns the number of contacts it covers.
func (s *Sink) Export(ctx context.Context, report models.Report) (int, error) {
	if !s.Configured() {
		return 0, ErrSinkNotConfigured
	}
	b, err := json.Marshal(report)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(b, s.secret))
	resp, err := s.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return report.Contacts, nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
