package ablyrt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ably/ably-go/ably"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

func TestToTokenerDetails(t *testing.T) {
	tok, err := toTokener(&realtime.Token{Token: "abc", Expires: 42, ClientID: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := tok.(*ably.TokenDetails)
	if !ok {
		t.Fatalf("expected token details, got %T", tok)
	}
	if details.Token != "abc" || details.Expires != 42 || details.ClientID != "alice" {
		t.Fatalf("unexpected details: %#v", details)
	}
}

func TestToTokenerSignedRequest(t *testing.T) {
	raw := json.RawMessage(`{"keyName":"app.key","nonce":"n","mac":"m","clientId":"alice","timestamp":1}`)
	tok, err := toTokener(&realtime.Token{Raw: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, ok := tok.(*ably.TokenRequest)
	if !ok {
		t.Fatalf("expected token request, got %T", tok)
	}
	if req.KeyName != "app.key" || req.MAC != "m" {
		t.Fatalf("unexpected request: %#v", req)
	}
}

func TestToTokenerRejectsEmpty(t *testing.T) {
	tests := []struct {
		name string
		tok  *realtime.Token
	}{
		{"nil", nil},
		{"empty", &realtime.Token{}},
		{"unsigned object", &realtime.Token{Raw: json.RawMessage(`{"foo":"bar"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := toTokener(tt.tok); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSpacesUnsupported(t *testing.T) {
	c := &Client{}
	if _, err := c.Spaces(); !errors.Is(err, realtime.ErrSpacesUnsupported) {
		t.Fatalf("expected ErrSpacesUnsupported, got %v", err)
	}
}

func TestPresenceActionMapping(t *testing.T) {
	for _, a := range []realtime.PresenceAction{
		realtime.PresenceAbsent, realtime.PresencePresent, realtime.PresenceEnter,
		realtime.PresenceLeave, realtime.PresenceUpdate,
	} {
		if got := fromPresenceAction(presenceAction(a)); got != a {
			t.Fatalf("expected %s to round trip, got %s", a, got)
		}
	}
}
