package model

import "time"

// BusinessProcess — бизнес-процесс в реестре.
type BusinessProcess struct {
	ID          string
	TenantID    *string
	Name        string
	Description string
	// Ответственный, утвердивший запись
	OwnerID   string
	CreatedAt time.Time
}

// Risk — риск в реестре.
type Risk struct {
	ID          string
	TenantID    *string
	Name        string
	Description string
	// Категория = остаточный риск при утверждении
	Category  string
	OwnerID   string
	ProcessID *string
	CreatedAt time.Time
}

// Control — мера контроля в реестре.
type Control struct {
	ID          string
	TenantID    *string
	Name        string
	Description string
	// Preventive, Detective, Corrective
	ControlType string
	OwnerID     string
	ProcessID   *string
	CreatedAt   time.Time
}
