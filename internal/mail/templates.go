// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package mail

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "verification_subject"}}Confirm your email address{{end}}
{{define "verification_body"}}Hello {{.Username}},

Confirm your email address by opening the link below:

{{.Link}}

The link expires at {{.Expires}}. If you did not create an account you can
ignore this message.
{{end}}
{{define "reset_subject"}}Reset your password{{end}}
{{define "reset_body"}}Hello {{.Username}},

A password reset was requested for your account. Choose a new password here:

{{.Link}}

The link expires at {{.Expires}}. If you did not ask for a reset you can
ignore this message; your password is unchanged.
{{end}}
`))

// templateData feeds the message templates.
type templateData struct {
	Username string
	Link     string
	Expires  string
}

// message is a rendered email ready for transport.
type message struct {
	To      string
	Subject string
	Body    string
}

func newTemplateData(username, link string, expires time.Time) templateData {
	return templateData{
		Username: username,
		Link:     link,
		Expires:  expires.UTC().Format(time.RFC1123),
	}
}

func render(kind, to string, data templateData) (message, error) {
	var subject, body bytes.Buffer
	if err := templates.ExecuteTemplate(&subject, kind+"_subject", data); err != nil {
		return message{}, oops.With("template", kind).Wrap(err)
	}
	if err := templates.ExecuteTemplate(&body, kind+"_body", data); err != nil {
		return message{}, oops.With("template", kind).Wrap(err)
	}
	return message{To: to, Subject: subject.String(), Body: body.String()}, nil
}

// link appends the token to base as a query parameter.
func link(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + token
}
