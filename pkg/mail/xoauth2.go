package mail

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
)

// BuildXOAUTH2String encodes the SASL XOAUTH2 initial client response for the
// given mailbox and bearer token. Pure function, no side effects:
//
//	base64("user=<email>\x01auth=Bearer <token>\x01\x01")
func BuildXOAUTH2String(user, token string) string {
	raw := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", user, token)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// xoauth2Auth implements net/smtp Auth for the XOAUTH2 mechanism.
// Start returns the raw (unencoded) payload; net/smtp base64-encodes the
// initial response itself. The transport enforces the TLS policy before any
// credentials are offered, so no TLS check happens here.
type xoauth2Auth struct {
	user  string
	token string
}

// XOAUTH2Auth returns an smtp.Auth performing the SASL XOAUTH2 exchange for
// the given mailbox using a bearer token in place of a password.
func XOAUTH2Auth(user, token string) smtp.Auth {
	return &xoauth2Auth{user: user, token: token}
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	payload := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(payload), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// The server sends a base64 JSON error blob as a challenge on
		// failure; the client answers with an empty response so the
		// server emits its final status code.
		return []byte{}, nil
	}
	return nil, nil
}
