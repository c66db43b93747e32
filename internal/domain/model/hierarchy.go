package model

import "time"

// RegulatoryFramework — верхний узел иерархии (закон).
type RegulatoryFramework struct {
	ID          string
	TenantID    *string
	Name        string
	Description string
	Version     string
	// Документ, классифицированный в этот узел последним
	DocumentID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RegulatoryRequirement — дочерний узел иерархии (статья, регламент).
type RegulatoryRequirement struct {
	ID          string
	TenantID    *string
	FrameworkID string
	Name        string
	Description string
	DocumentID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
