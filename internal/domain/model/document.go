// Пакет model — доменные модели Register Module.
package model

import "time"

// DocumentStatus — статус обработки загруженного документа.
type DocumentStatus string

const (
	// DocumentPending — документ загружен, обработка не начиналась
	DocumentPending DocumentStatus = "pending"
	// DocumentProcessing — конвейер обработки запущен
	DocumentProcessing DocumentStatus = "processing"
	// DocumentCompleted — предложения сохранены
	DocumentCompleted DocumentStatus = "completed"
	// DocumentFailed — обработка завершилась ошибкой
	DocumentFailed DocumentStatus = "failed"
)

// Document — загруженный регуляторный документ.
type Document struct {
	// Уникальный идентификатор (UUID)
	ID string
	// Арендатор; nil — документ загружен пользователем без арендатора
	TenantID *string
	// Исходное имя файла
	Filename string
	// Путь к объекту в хранилище
	StoragePath string
	// Статус обработки
	Status DocumentStatus
	// Пользователь, загрузивший документ
	UploadedBy string
	// Время загрузки
	CreatedAt time.Time
	// Время последнего изменения
	UpdatedAt time.Time
	// Время архивации (nil — активен)
	ArchivedAt *time.Time
}
