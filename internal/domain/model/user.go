package model

import "time"

// Роли пользователей в реестре.
const (
	// RoleAdmin — администратор арендатора
	RoleAdmin = "admin"
	// RoleComplianceOfficer — разбирает предложения и назначает ответственных
	RoleComplianceOfficer = "compliance_officer"
	// RoleBPO — владелец бизнес-процесса, утверждает назначенные предложения
	RoleBPO = "bpo"
)

// User — пользователь реестра (зеркало учётной записи IdP).
// Нужен конвейеру для определения арендатора загрузившего.
type User struct {
	// ID — sub из IdP
	ID string
	// Арендатор; nil — пользователь ещё не привязан
	TenantID  *string
	Email     string
	Role      string
	CreatedAt time.Time
}
