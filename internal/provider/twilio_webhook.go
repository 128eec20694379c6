package provider

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/novapush/dispatcher/internal/domain"
)

// ValidateTwilioSignature checks the X-Twilio-Signature header against the
// HMAC-SHA1 of the full request URL plus the form parameters sorted by key,
// base64-encoded with the account auth token as secret. This is Twilio's
// documented request validation scheme.
func ValidateTwilioSignature(authToken, signature, url string, params map[string]string) bool {
	if strings.TrimSpace(authToken) == "" || strings.TrimSpace(signature) == "" {
		return false
	}

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
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// TwilioCallback is the subset of a Twilio status callback the reconciler
// consumes.
type TwilioCallback struct {
	MessageSid    string
	MessageStatus string
}

// ParseTwilioCallback extracts the provider message id and status from the
// callback form parameters, accepting both the Message* and legacy Sms*
// names.
func ParseTwilioCallback(params map[string]string) TwilioCallback {
	sid := params["MessageSid"]
	if sid == "" {
		sid = params["SmsSid"]
	}
	status := params["MessageStatus"]
	if status == "" {
		status = params["SmsStatus"]
	}
	if status == "" {
		status = "unknown"
	}

	return TwilioCallback{MessageSid: sid, MessageStatus: status}
}

// MapTwilioStatus maps a provider status string onto the internal delivery
// vocabulary. Unrecognized provider statuses default to sent.
func MapTwilioStatus(providerStatus string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "delivered":
		return domain.StatusDelivered
	case "failed":
		return domain.StatusFailed
	case "sent":
		return domain.StatusSent
	default:
		return domain.StatusSent
	}
}
