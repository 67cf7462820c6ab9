package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Renderer builds messages from the embedded templates.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func NewRenderer() (*Renderer, error) {
	h, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	t, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: h, text: t}, nil
}

// VerificationData fills the verification email.
type VerificationData struct {
	Username string
	Link     string
	TTLHours int
}

// PasswordChangedData fills the password-change notice.
type PasswordChangedData struct {
	Username string
}

func (r *Renderer) Verification(to string, d VerificationData) (Message, error) {
	return r.render(to, "Verify your email address", "verification", d)
}

func (r *Renderer) PasswordChanged(to string, d PasswordChangedData) (Message, error) {
	return r.render(to, "Your password has been changed", "password_changed", d)
}

func (r *Renderer) render(to, subject, name string, data any) (Message, error) {
	var hb, tb bytes.Buffer
	if err := r.html.ExecuteTemplate(&hb, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("render %s.html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&tb, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("render %s.txt: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: hb.String(), Text: tb.String()}, nil
}
