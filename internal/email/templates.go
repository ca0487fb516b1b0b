package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

// ProlongationDeclared is what the validating prescriber needs to review a
// prolongation.
type ProlongationDeclared struct {
	PrescriberName    string
	JobSeekerName     string
	ApprovalNumber    string
	SiaeName          string
	ReasonLabel       string
	ReasonExplanation string
	StartAt           string
	EndAt             string
	ApprovalURL       string
}

type prolongationDeclaredEmailData struct {
	baseEmailData
	ProlongationDeclared
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderProlongationDeclared(data ProlongationDeclared) (subject, content string, err error) {
	subject = fmt.Sprintf(subjectProlongationDeclaredFmt, data.ApprovalNumber)
	content, err = renderEmailTemplate("prolongation_declared.html", prolongationDeclaredEmailData{
		baseEmailData: baseEmailData{
			Title:    "Demande de prolongation",
			Heading:  "Une prolongation attend votre validation",
			CTALabel: "Voir le PASS IAE",
			CTAURL:   data.ApprovalURL,
		},
		ProlongationDeclared: data,
	})
	return subject, content, err
}
