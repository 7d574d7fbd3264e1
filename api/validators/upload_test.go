package validators

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 32)...)
)

type part struct {
	name string
	body []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		w, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := w.Write(f.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/galleries", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error", code)
	}
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestParseUploadFormSniffsImages(t *testing.T) {
	req := multipartRequest(t, map[string]string{
		"title":          "  Wedding Smith ",
		"allow_download": "on",
		"delivery_date":  "2026-06-01",
		"expires_at":     "2026-09-01T12:00:00+02:00",
	}, part{"a.jpg", jpegBytes}, part{"b.png", pngBytes})

	form, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{MaxFiles: 5, MaxFileBytes: 1 << 20})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer form.RemoveAll()

	if got := form.Value("title"); got != "Wedding Smith" {
		t.Fatalf("expected trimmed title, got %q", got)
	}
	if ok, err := form.Bool("allow_download"); err != nil || !ok {
		t.Fatalf("expected allow_download true, got %v %v", ok, err)
	}
	if ok, err := form.Bool("allow_share"); err != nil || ok {
		t.Fatalf("expected missing allow_share false, got %v %v", ok, err)
	}
	delivery, err := form.Time("delivery_date")
	if err != nil || delivery == nil || !delivery.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected delivery date %v %v", delivery, err)
	}
	expires, err := form.Time("expires_at")
	if err != nil || expires == nil || !expires.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v %v", expires, err)
	}

	if len(form.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(form.Files))
	}
	if form.Files[0].Name != "a.jpg" || form.Files[0].ContentType != "image/jpeg" {
		t.Fatalf("unexpected first file %+v", form.Files[0])
	}
	if form.Files[1].ContentType != "image/png" {
		t.Fatalf("expected png, got %s", form.Files[1].ContentType)
	}

	rc, err := form.Files[1].Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if !bytes.Equal(body, pngBytes) {
		t.Fatal("expected original bytes")
	}
}

func TestParseUploadFormRejectsNonImages(t *testing.T) {
	req := multipartRequest(t, map[string]string{"title": "x"}, part{"a.jpg", jpegBytes}, part{"notes.txt", []byte("just some text")})
	_, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestParseUploadFormRejectsEmptyFile(t *testing.T) {
	req := multipartRequest(t, nil, part{"empty.jpg", nil})
	_, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestParseUploadFormEnforcesLimits(t *testing.T) {
	req := multipartRequest(t, nil, part{"a.jpg", jpegBytes}, part{"b.jpg", jpegBytes}, part{"c.jpg", jpegBytes})
	_, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{MaxFiles: 2})
	requireCode(t, err, pkgerrors.CodeValidation)

	req = multipartRequest(t, nil, part{"a.jpg", jpegBytes})
	_, err = ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{MaxFileBytes: 8})
	requireCode(t, err, pkgerrors.CodeTooLarge)
}

func TestParseUploadFormRejectsBadFields(t *testing.T) {
	req := multipartRequest(t, map[string]string{"watermark": "maybe", "expires_at": "next week"}, part{"a.jpg", jpegBytes})
	form, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer form.RemoveAll()

	_, err = form.Bool("watermark")
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = form.Time("expires_at")
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestParseUploadFormRejectsNonMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/galleries", bytes.NewBufferString(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUploadFormTextRejectsRatherThanTruncates(t *testing.T) {
	req := multipartRequest(t, map[string]string{
		"access_password": strings.Repeat("ü", 5),
		"description":     " short ",
		"bad":             "a\xffb",
	}, part{"a.jpg", jpegBytes})
	form, err := ParseUploadForm(httptest.NewRecorder(), req, "files", UploadLimits{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer form.RemoveAll()

	if got, err := form.Text("access_password", 5); err != nil || got != strings.Repeat("ü", 5) {
		t.Fatalf("expected five runes to fit, got %q %v", got, err)
	}
	_, err = form.Text("access_password", 4)
	requireCode(t, err, pkgerrors.CodeValidation)

	if got, err := form.Text("description", 10); err != nil || got != "short" {
		t.Fatalf("expected trimmed description, got %q %v", got, err)
	}
	if got, err := form.Text("missing", 10); err != nil || got != "" {
		t.Fatalf("expected empty missing field, got %q %v", got, err)
	}
	_, err = form.Text("bad", 10)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUploadLimitsMaxRequestBytes(t *testing.T) {
	if got := (UploadLimits{MaxFiles: 3, MaxFileBytes: 10}).MaxRequestBytes(); got != 30+formOverhead {
		t.Fatalf("unexpected limit %d", got)
	}
	if got := (UploadLimits{MaxFiles: 3}).MaxRequestBytes(); got != 0 {
		t.Fatalf("expected disabled limit, got %d", got)
	}
}
