package mail

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

// ContactMailParams fills the admin notification sent for each contact-form
// submission.
type ContactMailParams struct {
	SiteName    string
	Name        string
	Email       string
	Phone       string
	Subject     string
	Message     string
	SubmittedAt string
	AdminURL    string
}

// TestMailParams fills the delivery-check message sent from the admin API
// and the sitectl testmail command.
type TestMailParams struct {
	SiteName  string
	Host      string
	Mechanism string
	SentAt    string
}

var (
	contactTemplate = template.New("contactNotification").Funcs(sprig.HtmlFuncMap())
	testTemplate    = template.New("testMessage").Funcs(sprig.HtmlFuncMap())

	//go:embed templates/contactNotification.html
	contactTemplateRaw string
	//go:embed templates/testMessage.html
	testTemplateRaw string
)

func init() {
	if _, err := contactTemplate.Parse(contactTemplateRaw); err != nil {
		panic(err)
	}
	if _, err := testTemplate.Parse(testTemplateRaw); err != nil {
		panic(err)
	}
}

func render(t *template.Template, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}

// RenderContactNotification renders the admin notification body for a new
// contact-form submission.
func RenderContactNotification(p ContactMailParams) (string, error) {
	return render(contactTemplate, p)
}

// RenderTestMessage renders the body of a delivery-check email.
func RenderTestMessage(p TestMailParams) (string, error) {
	return render(testTemplate, p)
}
