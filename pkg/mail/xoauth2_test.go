package mail

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildXOAUTH2String(t *testing.T) {
	got := BuildXOAUTH2String("admin@example.com", "T123")
	assert.Equal(t, "dXNlcj1hZG1pbkBleGFtcGxlLmNvbQFhdXRoPUJlYXJlciBUMTIzAQE=", got)
}

func TestBuildXOAUTH2StringDeterministic(t *testing.T) {
	first := BuildXOAUTH2String("someone@example.com", "token")
	second := BuildXOAUTH2String("someone@example.com", "token")
	assert.Equal(t, first, second)
}

func TestXOAUTH2AuthStart(t *testing.T) {
	auth := XOAUTH2Auth("admin@example.com", "T123")

	mech, payload, err := auth.Start(&smtp.ServerInfo{Name: "smtp.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	// net/smtp base64-encodes the initial response, so Start returns it raw.
	assert.Equal(t, "user=admin@example.com\x01auth=Bearer T123\x01\x01", string(payload))
}

func TestXOAUTH2AuthNext(t *testing.T) {
	auth := XOAUTH2Auth("admin@example.com", "T123")

	// A server challenge carries an error blob; the client must answer with
	// an empty response to elicit the final status code.
	resp, err := auth.Next([]byte(`{"status":"401"}`), true)
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Empty(t, resp)

	resp, err = auth.Next(nil, false)
	require.NoError(t, err)
	assert.Nil(t, resp)
}
