// Пакет rbac — матрица прав ролей реестра.
// Роли приходят из IdP (realm_access.roles). Пользователь может иметь
// несколько ролей, итоговые права — объединение прав всех ролей.
package rbac

import "github.com/bigkaa/complyreg/register-module/internal/domain/model"

// Permission — право на группу операций.
type Permission string

const (
	// PermProcess — запуск и перезапуск обработки документа
	PermProcess Permission = "process"
	// PermTriage — передача предложений на оценку и отклонение
	PermTriage Permission = "triage"
	// PermAssess — утверждение и отклонение назначенных предложений
	PermAssess Permission = "assess"
	// PermAudit — чтение журнала аудита
	PermAudit Permission = "audit"
	// PermRead — чтение предложений
	PermRead Permission = "read"
)

// rolePermissions — матрица прав.
var rolePermissions = map[string]map[Permission]bool{
	model.RoleAdmin: {
		PermProcess: true, PermTriage: true, PermAssess: true, PermAudit: true, PermRead: true,
	},
	model.RoleComplianceOfficer: {
		PermProcess: true, PermTriage: true, PermAudit: true, PermRead: true,
	},
	model.RoleBPO: {
		PermAssess: true, PermRead: true,
	},
}

// Allowed проверяет, даёт ли хотя бы одна из ролей указанное право.
func Allowed(roles []string, p Permission) bool {
	for _, r := range roles {
		if rolePermissions[r][p] {
			return true
		}
	}
	return false
}

// IsValidRole проверяет, является ли строка известной ролью.
func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// FilterKnown оставляет только известные роли (роли IdP вроде
// offline_access или default-roles-* отбрасываются).
func FilterKnown(roles []string) []string {
	var result []string
	for _, r := range roles {
		if IsValidRole(r) {
			result = append(result, r)
		}
	}
	return result
}

// rolePriority — роли от старшей к младшей.
var rolePriority = []string{model.RoleAdmin, model.RoleComplianceOfficer, model.RoleBPO}

// HighestRole возвращает старшую из известных ролей.
// Пустая строка — известных ролей нет.
func HighestRole(roles []string) string {
	for _, candidate := range rolePriority {
		for _, r := range roles {
			if r == candidate {
				return candidate
			}
		}
	}
	return ""
}
