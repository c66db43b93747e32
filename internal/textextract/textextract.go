// Пакет textextract — извлечение текста из загруженных документов.
//
// Поддерживаемые форматы определяются по расширению имени файла:
//   - .pdf — текст страниц по порядку, через перевод строки
//   - .html, .htm — видимый текст без script/style
//   - остальные — UTF-8 текст, некорректные последовательности заменяются на U+FFFD
//
// Пустой после обрезки пробелов результат считается ошибкой.
package textextract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrExtraction — документ повреждён или не содержит текста.
var ErrExtraction = errors.New("ошибка извлечения текста")

// Extract извлекает текст из содержимого файла.
func Extract(data []byte, filename string) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		text, err = extractPDF(data)
	case ".html", ".htm":
		text, err = extractHTML(data)
	default:
		text = decodeUTF8(data)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: документ %q не содержит текста", ErrExtraction, filename)
	}
	return text, nil
}

// decodeUTF8 декодирует байты как UTF-8 с заменой некорректных последовательностей.
func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
