package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF возвращает текст всех страниц PDF в порядке следования.
// Страница без текста или с нечитаемым содержимым даёт пустую строку,
// ошибкой считается только неразбираемый файл целиком.
func extractPDF(data []byte) (text string, err error) {
	// Библиотека паникует на части повреждённых файлов
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: повреждённый PDF: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: не удалось разобрать PDF: %v", ErrExtraction, err)
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			pageText = ""
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}
