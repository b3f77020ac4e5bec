package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioCaller_PlaceCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+917499902809", r.PostFormValue("To"))
		assert.Equal(t, "+15550000000", r.PostFormValue("From"))
		assert.Contains(t, r.PostFormValue("Twiml"), "<Say>Hi Rahul Sharma!</Say>")
		assert.Equal(t, "https://example.test/status", r.PostFormValue("StatusCallback"))
		assert.Len(t, r.PostForm["StatusCallbackEvent"], 4)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA42","status":"queued"}`))
	}))
	defer srv.Close()

	c, err := NewTwilioCaller(TwilioConfig{
		BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "secret",
		From: "+15550000000", StatusCallbackURL: "https://example.test/status",
	})
	require.NoError(t, err)

	sid, err := c.PlaceCall(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "CA42", sid)
}

func TestTwilioCaller_InvalidNumberCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number +1 is not valid.","status":400}`))
	}))
	defer srv.Close()

	c, err := NewTwilioCaller(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC", AuthToken: "t", From: "+1"})
	require.NoError(t, err)

	_, err = c.PlaceCall(context.Background(), sampleRequest())
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeInvalidNumber, de.Code)
	assert.False(t, de.Retryable)
	assert.True(t, strings.Contains(de.Error(), "21211"))
}

func TestTwilioCaller_RequiresMessage(t *testing.T) {
	c, err := NewTwilioCaller(TwilioConfig{AccountSID: "AC", AuthToken: "t", From: "+1"})
	require.NoError(t, err)

	req := sampleRequest()
	req.FirstMessage = "  "
	_, err = c.PlaceCall(context.Background(), req)
	assert.Error(t, err)
}

func TestRenderSay_EscapesText(t *testing.T) {
	xml, err := RenderSay(`Tom & Jerry <3 "deals"`)
	require.NoError(t, err)
	assert.Contains(t, xml, "<Response><Say>Tom &amp; Jerry &lt;3 &#34;deals&#34;</Say><Hangup></Hangup></Response>")

	_, err = RenderSay("")
	assert.Error(t, err)
}
