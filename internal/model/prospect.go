// internal/model/prospect.go
package model

// Prospect statuses.
const (
	ProspectActive       = "ACTIVE"
	ProspectUnsubscribed = "UNSUBSCRIBED"
	ProspectBounced      = "BOUNCED"
	ProspectComplained   = "COMPLAINED"
)

type Prospect struct {
	ID          string `db:"id" json:"id"`
	WorkspaceID string `db:"workspace_id" json:"workspaceId"`
	Email       string `db:"email" json:"email"`
	FirstName   string `db:"first_name" json:"firstName"`
	LastName    string `db:"last_name" json:"lastName"`
	Company     string `db:"company" json:"company"`
	Status      string `db:"status" json:"status"`
}

// TemplateData exposes the placeholders available to sequence templates.
func (p *Prospect) TemplateData() map[string]string {
	return map[string]string{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"company":   p.Company,
		"email":     p.Email,
	}
}
