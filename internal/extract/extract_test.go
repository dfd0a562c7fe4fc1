package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidFileType(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"test.pdf", true},
		{"test.PDF", true},
		{"report.docx", true},
		{"notes.txt", true},
		{"page.html", true},
		{"page.HTM", true},
		{"script.js", false},
		{"image.jpg", false},
		{"README.md", false},
		{"noextension", false},
		{"archive.tar.gz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFileType(tt.name))
		})
	}
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, ".pdf", FileExtension("Report.PDF"))
	assert.Equal(t, ".gz", FileExtension("a.tar.gz"))
	assert.Equal(t, "", FileExtension("Makefile"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "testfile.pdf", SanitizeFilename(`test/file<>:*?"|.pdf`))
	assert.Equal(t, "my report-v2.docx", SanitizeFilename("  my report-v2.docx  "))

	empty := SanitizeFilename("<>|")
	assert.True(t, strings.HasPrefix(empty, "file_"))
	assert.Len(t, empty, len("file_")+8)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abcde...", TruncateText("abcdefgh", 5))
	assert.Equal(t, "héllo...", TruncateText("héllo wörld", 5))
	assert.Equal(t, "...", TruncateText("abc", 0))
	assert.Equal(t, "...", TruncateText("abc", -1))
	assert.Equal(t, "", TruncateText("", -1))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("a.txt"))
	assert.ErrorIs(t, Validate("a.exe"), ErrUnsupportedType)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract_Text(t *testing.T) {
	path := writeFile(t, "upload.tmp", "hello plain world")

	doc, err := New(nil).Extract(path, "release_notes.txt")
	require.NoError(t, err)
	assert.Equal(t, KindText, doc.Kind)
	assert.Equal(t, []string{"hello plain world"}, doc.Units)
	assert.Equal(t, "release notes", doc.Title)
}

func TestExtract_HTML(t *testing.T) {
	path := writeFile(t, "upload.tmp", `<html><head><title>Guide</title><style>p{}</style></head>
<body><nav>menu</nav><main><h1>Install</h1><p>Run the installer.</p></main></body></html>`)

	doc, err := New(nil).Extract(path, "guide.html")
	require.NoError(t, err)
	assert.Equal(t, "Guide", doc.Title)
	require.Len(t, doc.Units, 1)
	assert.Contains(t, doc.Units[0], "Run the installer.")
	assert.NotContains(t, doc.Units[0], "menu")
}

func TestExtract_Unsupported(t *testing.T) {
	path := writeFile(t, "upload.tmp", "binary")

	doc, err := New(nil).Extract(path, "image.png")
	require.NoError(t, err)
	assert.True(t, doc.Empty())
}

func TestExtract_MissingPDF(t *testing.T) {
	_, err := New(nil).Extract(filepath.Join(t.TempDir(), "missing.pdf"), "missing.pdf")
	assert.Error(t, err)
}

func writeDOCX(t *testing.T, documentXML, coreXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	if coreXML != "" {
		w, err = zw.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(coreXML))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtract_DOCXParagraphs(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`
	core := `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>Quarterly Plan</dc:title>
</cp:coreProperties>`

	doc, err := New(nil).Extract(writeDOCX(t, body, core), "plan.docx")
	require.NoError(t, err)
	assert.Equal(t, KindParagraphs, doc.Kind)
	assert.Equal(t, []string{"First paragraph.", "", "Second paragraph."}, doc.Units)
	assert.Equal(t, "Quarterly Plan", doc.Title)
}

func TestExtract_DOCXFallbackTitle(t *testing.T) {
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>x</w:t></w:r></w:p></w:body></w:document>`

	doc, err := New(nil).Extract(writeDOCX(t, body, ""), "team_meeting-notes.docx")
	require.NoError(t, err)
	assert.Equal(t, "team meeting notes", doc.Title)
}
