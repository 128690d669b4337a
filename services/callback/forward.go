package callback

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kinads-controlplane/pkg/client"
	"kinads-controlplane/services/registry"
)

// Forwarder notifies an application's callback URL of a credited reward.
type Forwarder struct {
	client *http.Client
}

func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{client: client.NewHTTPClient(timeout)}
}

// ForwardSignature is the hex HMAC-SHA256 over appKey, eventId, userId and
// timestamp keyed with the client's signature secret.
func ForwardSignature(secret string, cb Callback) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(cb.AppKey + cb.EventID + cb.UserID + cb.Timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildURL appends the reward parameters to the client's callback URL while
// keeping any query it already carries.
func BuildURL(client *registry.ClientConfig, cb Callback) (string, error) {
	u, err := url.Parse(client.CallbackURL)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	params := []Param{
		{Key: "eventId", Value: cb.EventID},
		{Key: "rewards", Value: cb.Rewards},
		{Key: "timestamp", Value: cb.Timestamp},
		{Key: "userId", Value: cb.UserID},
		{Key: "signature", Value: ForwardSignature(client.SignatureSecret, cb)},
	}
	params = append(params, cb.Passthrough...)

	parts := make([]string, 0, len(params)+1)
	if u.RawQuery != "" {
		parts = append(parts, u.RawQuery)
	}
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	u.RawQuery = strings.Join(parts, "&")

	return u.String(), nil
}

// Forward issues the GET. Any non-2xx answer is an error.
func (f *Forwarder) Forward(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward callback: unexpected status %d", resp.StatusCode)
	}
	return nil
}
