package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	TwilioSignatureHeader = "X-Twilio-Signature"
	VapiSecretHeader      = "X-Vapi-Secret"
)

// TwilioSignature is base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
func TwilioSignature(authToken, callbackURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature reports whether sig matches the request Twilio signed.
func ValidTwilioSignature(authToken, callbackURL string, form url.Values, sig string) bool {
	if authToken == "" || sig == "" {
		return false
	}
	want := TwilioSignature(authToken, callbackURL, form)
	return hmac.Equal([]byte(want), []byte(sig))
}

// ValidVapiSecret compares the shared secret Vapi sends with each webhook.
func ValidVapiSecret(secret, got string) bool {
	if secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(got)) == 1
}

// requestURL rebuilds the public URL of r, honouring a TLS-terminating proxy.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
