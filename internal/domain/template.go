package domain

import (
	"fmt"
	"strings"
	"time"
)

// TemplateRecord is a database-stored template override. An active record
// takes precedence over the file-system template of the same (name, locale);
// an inactive record is treated as absent for rendering purposes.
type TemplateRecord struct {
	ID           string
	TemplateName string
	Locale       string
	Content      string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *TemplateRecord) Validate() error {
	if strings.TrimSpace(t.TemplateName) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if strings.TrimSpace(t.Locale) == "" {
		return fmt.Errorf("%w: locale is required", ErrValidation)
	}
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}
