package galleries

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage"
)

// BuildUploadTasks maps files to upload tasks in input order. It performs no
// I/O. Any file with a non-positive size rejects the whole batch. now should be
// taken after the slug is allocated: the cleanup sweep treats objects older
// than a gallery_deleted event as belonging to the deleted gallery.
func BuildUploadTasks(files []SourceFile, meta Metadata, slug string, ownerID uuid.UUID, now time.Time) ([]UploadTask, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required")
	}
	if strings.TrimSpace(slug) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	for _, f := range files {
		if f.Size <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file %q is empty or corrupt", f.Name)).
				WithDetails(map[string]any{"file": f.Name, "size": f.Size})
		}
	}

	stamp := now.UnixMilli()
	tasks := make([]UploadTask, len(files))
	for i, f := range files {
		name := sanitizeFileName(f.Name)
		if name == "" {
			name = fmt.Sprintf("image-%d", i+1)
		}
		tasks[i] = UploadTask{
			Source:           f,
			DestinationPath:  storage.ObjectPath(ownerID.String(), slug, fmt.Sprintf("%d-%d-%s", stamp, i+1, name)),
			SequenceIndex:    i,
			IsCoverCandidate: i == 0,
		}
	}
	return tasks, nil
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	dash := false
	for _, r := range clean {
		switch {
		case unicode.IsControl(r):
			continue
		case isKeyRune(r):
			b.WriteRune(r)
			dash = false
		case !dash:
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-_.")
}

// isKeyRune reports whether r may appear in an object name as is. Anything
// else (URL delimiters such as # ? % included) becomes a dash.
func isKeyRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' || r == '(' || r == ')'
}
