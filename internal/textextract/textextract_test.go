package textextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF собирает минимальный PDF: по одной странице на элемент pages.
// Пустая строка — страница без текста.
func buildPDF(pages ...string) []byte {
	var objects []string

	// 1 — каталог, 2 — дерево страниц, 3 — шрифт, далее пары страница/содержимое
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+i*2))
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		contentID := 5 + i*2
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentID))
		stream := ""
		if text != "" {
			stream = fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		}
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	data := buildPDF("Article 5: Employers must ensure", "", "Article 6")

	text, err := Extract(data, "AML-2024.pdf")
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	if !strings.Contains(text, "Article 5: Employers must ensure") {
		t.Errorf("текст первой страницы не найден: %q", text)
	}
	first := strings.Index(text, "Article 5")
	second := strings.Index(text, "Article 6")
	if second < first {
		t.Errorf("нарушен порядок страниц: %q", text)
	}
	if strings.Count(text, "\n") < 2 {
		t.Errorf("страницы должны разделяться переводом строки: %q", text)
	}
}

func TestExtract_PDFUpperCaseExtension(t *testing.T) {
	if _, err := Extract(buildPDF("Section 1"), "REPORT.PDF"); err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
}

func TestExtract_EmptyPDF(t *testing.T) {
	_, err := Extract(buildPDF("", ""), "empty.pdf")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("ожидали ErrExtraction, получили %v", err)
	}
}

func TestExtract_CorruptedPDF(t *testing.T) {
	_, err := Extract([]byte("это совсем не PDF"), "broken.pdf")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("ожидали ErrExtraction, получили %v", err)
	}
}

func TestExtract_PlainText(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		want     string
		wantErr  bool
	}{
		{
			name:     "корректный UTF-8",
			data:     []byte("Статья 5: работодатель обязан"),
			filename: "law.txt",
			want:     "Статья 5: работодатель обязан",
		},
		{
			name:     "некорректные байты заменяются",
			data:     []byte{'A', 0xff, 'B'},
			filename: "law.txt",
			want:     "A�B",
		},
		{
			name:     "неизвестное расширение читается как текст",
			data:     []byte("policy"),
			filename: "policy.md",
			want:     "policy",
		},
		{
			name:     "только пробелы",
			data:     []byte("  \n\t "),
			filename: "blank.txt",
			wantErr:  true,
		},
		{
			name:     "пустой файл",
			data:     nil,
			filename: "empty.txt",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.data, tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrExtraction) {
					t.Fatalf("ожидали ErrExtraction, получили %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, ожидали %q", got, tt.want)
			}
		})
	}
}

func TestExtract_HTML(t *testing.T) {
	page := `<html><head><title>Заголовок</title><style>p{}</style></head>
<body><h1>AML Act</h1><script>var x = 1;</script><p>Article 5</p></body></html>`

	got, err := Extract([]byte(page), "act.html")
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	if got != "AML Act\nArticle 5" {
		t.Errorf("Extract() = %q", got)
	}

	if _, err := Extract([]byte("<html><script>x()</script></html>"), "empty.htm"); !errors.Is(err, ErrExtraction) {
		t.Errorf("ожидали ErrExtraction для HTML без текста, получили %v", err)
	}
}
