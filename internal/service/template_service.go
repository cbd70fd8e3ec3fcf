// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderStep fills a sequence step's subject and body for one prospect.
func RenderStep(step *model.SequenceStep, p *model.Prospect) (subject, body string) {
	data := p.TemplateData()
	return RenderTemplate(step.Subject, data), RenderTemplate(step.Body, data)
}
