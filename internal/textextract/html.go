package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements — элементы, текст которых не показывается пользователю.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// extractHTML возвращает видимый текст HTML-документа.
// Текстовые узлы разделяются переводом строки.
func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader([]byte(decodeUTF8(data))))
	if err != nil {
		return "", fmt.Errorf("%w: не удалось разобрать HTML: %v", ErrExtraction, err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(parts, "\n"), nil
}
