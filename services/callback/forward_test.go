package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kinads-controlplane/services/registry"
)

func TestForwardSignature(t *testing.T) {
	cb := Callback{AppKey: "clientId", EventID: "eventId", UserID: "appUserId", Timestamp: "202004110724", Rewards: "10"}
	require.Equal(t, forwardSignature, ForwardSignature("secret", cb))

	cb.Rewards = "999"
	require.Equal(t, forwardSignature, ForwardSignature("secret", cb))
}

func TestBuildURL(t *testing.T) {
	cb := Callback{
		AppKey:      "clientId",
		EventID:     "eventId",
		UserID:      "appUserId",
		Timestamp:   "202004110724",
		Rewards:     "10",
		Passthrough: []Param{{Key: "custom_wallet", Value: "abc 123"}},
	}

	cases := map[string]string{
		"http://someurl.com":             "http://someurl.com/?eventId=eventId&rewards=10&timestamp=202004110724&userId=appUserId&signature=" + forwardSignature + "&custom_wallet=abc+123",
		"http://someurl.com?a=b":         "http://someurl.com/?a=b&eventId=eventId&rewards=10&timestamp=202004110724&userId=appUserId&signature=" + forwardSignature + "&custom_wallet=abc+123",
		"https://app.example/cb?x=1&y=2": "https://app.example/cb?x=1&y=2&eventId=eventId&rewards=10&timestamp=202004110724&userId=appUserId&signature=" + forwardSignature + "&custom_wallet=abc+123",
	}
	for callbackURL, want := range cases {
		t.Run(callbackURL, func(t *testing.T) {
			got, err := BuildURL(&registry.ClientConfig{CallbackURL: callbackURL, SignatureSecret: "secret"}, cb)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}

	_, err := BuildURL(&registry.ClientConfig{CallbackURL: "://bad"}, cb)
	require.Error(t, err)
}

func TestForwarderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)
	require.NoError(t, f.Forward(context.Background(), srv.URL+"/?ok=1"))
	require.Error(t, f.Forward(context.Background(), srv.URL+"/?fail=1"))
}
