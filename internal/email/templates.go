package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// OrderInfo carries what the order email templates render.
type OrderInfo struct {
	OrderNumber  string
	CustomerName string
	Total        string
	Items        []LineItem
}

// LineItem is one fulfilled line in the confirmation email.
type LineItem struct {
	Description string
	Detail      string
}

type emailTemplate struct {
	Subject string
	Text    string
	HTML    string
}

var builtinTemplates = map[string]emailTemplate{
	"order_confirmation": {
		Subject: "Order {{.OrderNumber}} is complete",
		Text:    orderConfirmationText,
		HTML:    orderConfirmationHTML,
	},
	"payment_failed": {
		Subject: "Payment failed for order {{.OrderNumber}}",
		Text:    paymentFailedText,
		HTML:    paymentFailedHTML,
	},
}

// Renderer renders the built-in notification templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl := template.New("email")
	for key, t := range builtinTemplates {
		for suffix, body := range map[string]string{
			"_subject": t.Subject,
			"_text":    t.Text,
			"_html":    t.HTML,
		} {
			if _, err := tmpl.New(key + suffix).Parse(body); err != nil {
				return nil, fmt.Errorf("failed to parse template %s%s: %w", key, suffix, err)
			}
		}
	}
	return &Renderer{templates: tmpl}, nil
}

// Render produces a ready-to-send email for the named template.
func (r *Renderer) Render(name, to string, info OrderInfo) (*Email, error) {
	if _, ok := builtinTemplates[name]; !ok {
		return nil, fmt.Errorf("unknown email template: %s", name)
	}

	render := func(suffix string) (string, error) {
		var buf bytes.Buffer
		if err := r.templates.ExecuteTemplate(&buf, name+suffix, info); err != nil {
			return "", fmt.Errorf("failed to render %s%s: %w", name, suffix, err)
		}
		return buf.String(), nil
	}

	subject, err := render("_subject")
	if err != nil {
		return nil, err
	}
	text, err := render("_text")
	if err != nil {
		return nil, err
	}
	html, err := render("_html")
	if err != nil {
		return nil, err
	}

	return &Email{To: to, Subject: subject, Text: text, HTML: html}, nil
}

const orderConfirmationText = `Hi {{.CustomerName}},

Your order {{.OrderNumber}} is complete.

{{range .Items}}- {{.Description}}{{if .Detail}} ({{.Detail}}){{end}}
{{end}}
Total: {{.Total}}

Thanks for choosing HostWeave.
`

const orderConfirmationHTML = `<p>Hi {{.CustomerName}},</p>
<p>Your order <strong>{{.OrderNumber}}</strong> is complete.</p>
<ul>
{{range .Items}}<li>{{.Description}}{{if .Detail}} ({{.Detail}}){{end}}</li>
{{end}}</ul>
<p>Total: {{.Total}}</p>
<p>Thanks for choosing HostWeave.</p>
`

const paymentFailedText = `Hi {{.CustomerName}},

The payment for order {{.OrderNumber}} did not go through, so nothing was
provisioned. Please update your payment method and try again.
`

const paymentFailedHTML = `<p>Hi {{.CustomerName}},</p>
<p>The payment for order <strong>{{.OrderNumber}}</strong> did not go through,
so nothing was provisioned. Please update your payment method and try again.</p>
`
