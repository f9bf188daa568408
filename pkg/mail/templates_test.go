package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderContactNotification(t *testing.T) {
	body, err := RenderContactNotification(ContactMailParams{
		SiteName:    "Diaspora Enterprise",
		Name:        "Jane Doe",
		Email:       "jane@example.com",
		Subject:     "Investment enquiry",
		Message:     "I would like to learn more about your offerings.",
		SubmittedAt: "2026-08-28 10:15",
		AdminURL:    "https://example.com/admin",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Jane Doe")
	assert.Contains(t, body, "jane@example.com")
	assert.Contains(t, body, "Investment enquiry")
	assert.Contains(t, body, "https://example.com/admin")
	// Phone was omitted; the template substitutes a placeholder.
	assert.Contains(t, body, "not provided")
}

func TestRenderContactNotificationEscapesHTML(t *testing.T) {
	body, err := RenderContactNotification(ContactMailParams{
		SiteName: "Diaspora Enterprise",
		Name:     "<script>alert(1)</script>",
		Email:    "x@example.com",
		Subject:  "s",
		Message:  "m",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderTestMessage(t *testing.T) {
	body, err := RenderTestMessage(TestMailParams{
		SiteName:  "Diaspora Enterprise",
		Host:      "smtp.office365.com",
		Mechanism: "xoauth2",
		SentAt:    "2026-08-28 10:15",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "smtp.office365.com")
	// sprig's upper pipe normalizes the mechanism name.
	assert.Contains(t, body, "XOAUTH2")
}
