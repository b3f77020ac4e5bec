package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cart-dialer/internal/calls"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioCaller places calls with Twilio's REST API and speaks the request's
// first message through inline TwiML.
type TwilioCaller struct {
	baseURL        string
	accountSID     string
	authToken      string
	from           string
	statusCallback string
	httpClient     *http.Client
}

type TwilioConfig struct {
	BaseURL           string
	AccountSID        string
	AuthToken         string
	From              string
	StatusCallbackURL string
	HTTPClient        *http.Client
}

func NewTwilioCaller(cfg TwilioConfig) (*TwilioCaller, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials missing")
	}
	if cfg.From == "" {
		return nil, errors.New("telephony: twilio from number required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// No client timeout: the dispatch context carries the call deadline.
		hc = &http.Client{}
	}
	return &TwilioCaller{
		baseURL:        base,
		accountSID:     cfg.AccountSID,
		authToken:      cfg.AuthToken,
		from:           cfg.From,
		statusCallback: cfg.StatusCallbackURL,
		httpClient:     hc,
	}, nil
}

func (t *TwilioCaller) Name() string { return "twilio" }

func (t *TwilioCaller) PlaceCall(ctx context.Context, req calls.CallRequest) (string, error) {
	if strings.TrimSpace(req.FirstMessage) == "" {
		return "", &DispatchError{Provider: t.Name(), Code: CodeProvider, Err: errors.New("message required")}
	}
	twiml, err := RenderSay(req.FirstMessage)
	if err != nil {
		return "", &DispatchError{Provider: t.Name(), Code: CodeProvider, Err: err}
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", t.from)
	form.Set("Twiml", twiml)
	if t.statusCallback != "" {
		form.Set("StatusCallback", t.statusCallback)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", t.baseURL, url.PathEscape(t.accountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &DispatchError{Provider: t.Name(), Code: CodeProvider, Err: err}
	}
	httpReq.SetBasicAuth(t.accountSID, t.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(t.Name(), err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		de := statusError(t.Name(), resp.StatusCode, body)
		// 21211: invalid 'To' phone number.
		if de.Code == CodeProvider && strings.Contains(de.Err.Error(), "code 21211") {
			de.Code = CodeInvalidNumber
		}
		return "", de
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.SID == "" {
		return "", &DispatchError{Provider: t.Name(), Code: CodeProvider, Status: resp.StatusCode, Err: errors.New("response carried no call sid")}
	}
	return parsed.SID, nil
}
