package contact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validContact() Contact {
	return Contact{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Subject: "Investment enquiry",
		Message: "I would like to learn more about your services.",
	}
}

func TestValidateAcceptsValidContact(t *testing.T) {
	c := validContact()
	c.Normalize()
	assert.NoError(t, c.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Contact)
		field  string
	}{
		{"name too short", func(c *Contact) { c.Name = "J" }, "name"},
		{"name too long", func(c *Contact) { c.Name = strings.Repeat("a", 201) }, "name"},
		{"email missing", func(c *Contact) { c.Email = "" }, "email"},
		{"email invalid", func(c *Contact) { c.Email = "not-an-email" }, "email"},
		{"email with display name", func(c *Contact) { c.Email = "Jane <jane@example.com>" }, "email"},
		{"phone too long", func(c *Contact) { c.Phone = strings.Repeat("1", 21) }, "phone"},
		{"subject too short", func(c *Contact) { c.Subject = "hey" }, "subject"},
		{"subject too long", func(c *Contact) { c.Subject = strings.Repeat("s", 301) }, "subject"},
		{"message too short", func(c *Contact) { c.Message = "short" }, "message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validContact()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateCollectsAllFailingFields(t *testing.T) {
	c := Contact{}
	err := c.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 4) // name, email, subject, message
}

func TestNormalizeLowercasesEmail(t *testing.T) {
	c := Contact{
		Name:    "  Jane Doe  ",
		Email:   " Jane@Example.COM ",
		Subject: "Hello there",
		Message: "A long enough message body.",
	}
	c.Normalize()

	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, "jane@example.com", c.Email)
	assert.NoError(t, c.Validate())
}
