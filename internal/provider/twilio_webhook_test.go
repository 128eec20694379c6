package provider

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
	"testing"

	"github.com/novapush/dispatcher/internal/domain"
)

func signTwilio(t *testing.T, authToken, url string, params map[string]string) string {
	t.Helper()

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(url)
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString(params[key])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(builder.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateTwilioSignature(t *testing.T) {
	t.Parallel()

	const (
		authToken = "auth-token"
		url       = "https://api.example.com/v1/webhooks/twilio"
	)
	params := map[string]string{
		"MessageSid":    "SM123",
		"MessageStatus": "delivered",
	}

	signature := signTwilio(t, authToken, url, params)

	if !ValidateTwilioSignature(authToken, signature, url, params) {
		t.Fatal("expected valid signature to verify")
	}
	if ValidateTwilioSignature(authToken, signature, url+"?x=1", params) {
		t.Fatal("expected signature over different URL to fail")
	}
	if ValidateTwilioSignature(authToken, "bogus", url, params) {
		t.Fatal("expected bogus signature to fail")
	}
	if ValidateTwilioSignature("", signature, url, params) {
		t.Fatal("expected missing auth token to fail closed")
	}
	if ValidateTwilioSignature(authToken, "", url, params) {
		t.Fatal("expected missing signature to fail closed")
	}
}

func TestParseTwilioCallback(t *testing.T) {
	t.Parallel()

	cb := ParseTwilioCallback(map[string]string{
		"MessageSid":    "SM123",
		"MessageStatus": "delivered",
	})
	if cb.MessageSid != "SM123" || cb.MessageStatus != "delivered" {
		t.Fatalf("callback = %+v", cb)
	}

	legacy := ParseTwilioCallback(map[string]string{
		"SmsSid":    "SM456",
		"SmsStatus": "failed",
	})
	if legacy.MessageSid != "SM456" || legacy.MessageStatus != "failed" {
		t.Fatalf("legacy callback = %+v", legacy)
	}

	empty := ParseTwilioCallback(map[string]string{"MessageSid": "SM789"})
	if empty.MessageStatus != "unknown" {
		t.Fatalf("status = %q, want unknown", empty.MessageStatus)
	}
}

func TestMapTwilioStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.Status{
		"delivered":  domain.StatusDelivered,
		"failed":     domain.StatusFailed,
		"sent":       domain.StatusSent,
		"processing": domain.StatusSent,
		"queued":     domain.StatusSent,
		"unknown":    domain.StatusSent,
	}
	for providerStatus, want := range cases {
		if got := MapTwilioStatus(providerStatus); got != want {
			t.Errorf("MapTwilioStatus(%q) = %s, want %s", providerStatus, got, want)
		}
	}
}
