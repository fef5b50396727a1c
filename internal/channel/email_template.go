package channel

import (
	"bytes"
	"fmt"
	"html/template"
)

// mailView is what the HTML wrapper renders. Every field is escaped by
// html/template.
type mailView struct {
	Subject   string
	Body      string
	Template  string
	Reference string
}

var mailLayout = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:24px 12px;background:#eef2f7;font-family:Helvetica,Arial,sans-serif;">
  <div style="max-width:560px;margin:0 auto;background:#ffffff;border:1px solid #d8dee8;border-radius:8px;">
    <h1 style="margin:0;padding:18px 28px;font-size:16px;font-weight:600;color:#ffffff;
               background:#1e3a5f;border-radius:8px 8px 0 0;">{{.Subject}}</h1>
    <div style="padding:24px 28px;font-size:14px;line-height:1.6;color:#1f2933;
                white-space:pre-wrap;word-break:break-word;">{{.Body}}</div>
    <p style="margin:0;padding:14px 28px;font-size:11px;color:#7b8794;border-top:1px solid #e4e7eb;">
      {{if .Template}}{{.Template}} &middot; {{end}}ref {{.Reference}}<br>
      You can change which notifications you receive in your account preferences.
    </p>
  </div>
</body>
</html>
`))

// renderMailHTML wraps a plain-text body for the delivery in the HTML layout.
func renderMailHTML(del *Delivery, subject, body string) (string, error) {
	view := mailView{Subject: subject, Body: body}
	if del.Template != nil {
		view.Template = del.Template.Name
	}
	if del.Record != nil {
		view.Reference = fmt.Sprintf("delivery-%d", del.Record.ID)
	}
	var buf bytes.Buffer
	if err := mailLayout.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("rendering mail layout: %w", err)
	}
	return buf.String(), nil
}
