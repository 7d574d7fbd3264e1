package validators

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

const (
	// multipartMemory is how much of a form is buffered before parts spill to disk.
	multipartMemory = 32 << 20
	// formOverhead covers text fields and multipart boundaries.
	formOverhead = 1 << 20
)

// UploadLimits bound a gallery upload form. Zero values disable a limit.
type UploadLimits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// MaxRequestBytes is the largest request body a form within these limits
// can need, or 0 when either limit is disabled.
func (l UploadLimits) MaxRequestBytes() int64 {
	if l.MaxFiles <= 0 || l.MaxFileBytes <= 0 {
		return 0
	}
	return int64(l.MaxFiles)*l.MaxFileBytes + formOverhead
}

// UploadedFile is one image part of a multipart form. ContentType is sniffed
// from the bytes, not taken from the client.
type UploadedFile struct {
	Name        string
	Size        int64
	ContentType string
	header      *multipart.FileHeader
}

// Open returns the file's content.
func (f UploadedFile) Open() (io.ReadCloser, error) {
	if f.header == nil {
		return nil, errors.New("upload part missing")
	}
	return f.header.Open()
}

// UploadForm is a parsed gallery upload.
type UploadForm struct {
	form  *multipart.Form
	Files []UploadedFile
}

// Value returns the trimmed text field.
func (f *UploadForm) Value(key string) string {
	if f == nil || f.form == nil {
		return ""
	}
	values := f.form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// Text returns the trimmed field, rejecting values longer than maxRunes
// characters or that are not valid UTF-8. A missing field is "".
func (f *UploadForm) Text(key string, maxRunes int) (string, error) {
	raw := f.Value(key)
	if !utf8.ValidString(raw) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "field must be valid UTF-8").WithDetails(map[string]any{"field": key})
	}
	if maxRunes > 0 && utf8.RuneCountInString(raw) > maxRunes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "field is too long").WithDetails(map[string]any{"field": key, "max": maxRunes})
	}
	return raw, nil
}

// Bool parses a checkbox-style field; a missing field is false.
func (f *UploadForm) Bool(key string) (bool, error) {
	raw := f.Value(key)
	if raw == "" {
		return false, nil
	}
	switch strings.ToLower(raw) {
	case "on", "yes":
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "field must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return v, nil
}

// Time parses an RFC3339 timestamp or a YYYY-MM-DD date; a missing field is nil.
func (f *UploadForm) Time(key string) (*time.Time, error) {
	raw := f.Value(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "field must be an RFC3339 timestamp or YYYY-MM-DD date").WithDetails(map[string]any{"field": key})
}

// RemoveAll deletes temporary files created while parsing.
func (f *UploadForm) RemoveAll() {
	if f == nil || f.form == nil {
		return
	}
	_ = f.form.RemoveAll()
}

// ParseUploadForm reads a multipart gallery upload. Every part under
// fileField must sniff as an image.
func ParseUploadForm(w http.ResponseWriter, r *http.Request, fileField string, limits UploadLimits) (*UploadForm, error) {
	if limit := limits.MaxRequestBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTooLarge, err, "upload exceeds the allowed size")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}

	form := &UploadForm{form: r.MultipartForm}
	headers := r.MultipartForm.File[fileField]
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		form.RemoveAll()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many files").WithDetails(map[string]any{
			"max_files": limits.MaxFiles,
			"received":  len(headers),
		})
	}

	for _, fh := range headers {
		file, err := inspectPart(fh, limits.MaxFileBytes)
		if err != nil {
			form.RemoveAll()
			return nil, err
		}
		form.Files = append(form.Files, file)
	}
	return form, nil
}

func inspectPart(fh *multipart.FileHeader, maxBytes int64) (UploadedFile, error) {
	details := map[string]any{"file": fh.Filename}
	if fh.Size <= 0 {
		return UploadedFile{}, pkgerrors.New(pkgerrors.CodeValidation, "file is empty").WithDetails(details)
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		details["max_bytes"] = maxBytes
		return UploadedFile{}, pkgerrors.New(pkgerrors.CodeTooLarge, "file exceeds the allowed size").WithDetails(details)
	}

	src, err := fh.Open()
	if err != nil {
		return UploadedFile{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open upload part")
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return UploadedFile{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read file").WithDetails(details)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		details["content_type"] = mtype.String()
		return UploadedFile{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not an image", fh.Filename)).WithDetails(details)
	}

	return UploadedFile{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: mtype.String(),
		header:      fh,
	}, nil
}
