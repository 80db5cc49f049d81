package filetype

import (
	"strings"
	"testing"

	"github.com/local/pagemerge/internal/pdftest"
)

func TestDetectPDF(t *testing.T) {
	info := New().Detect("a.pdf", pdftest.MustNew(t, pdftest.Letter))
	if !info.Supported || info.MIMEType != PDF || info.Extension != ".pdf" {
		t.Errorf("info = %+v", info)
	}
}

func TestDetectIgnoresName(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"notes.pdf", []byte("just some text\n"), "not a PDF"},
		{"photo.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), "Image file"},
		{"archive.zip", []byte("PK\x03\x04\x14\x00\x00\x00"), "Unsupported file type"},
	}
	for _, c := range cases {
		info := New().Detect(c.name, c.data)
		if info.Supported {
			t.Errorf("%s: detected as supported", c.name)
		}
		if !strings.Contains(info.Description, c.want) {
			t.Errorf("%s: description %q, want it to mention %q", c.name, info.Description, c.want)
		}
	}
}

func TestDetectPDFWithoutExtension(t *testing.T) {
	if info := New().Detect("upload", pdftest.MustNew(t, pdftest.Letter)); !info.Supported {
		t.Errorf("info = %+v", info)
	}
}
