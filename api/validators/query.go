package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

// Query reads typed values from a request's query string. Blank values are
// treated as absent.
type Query struct {
	values url.Values
}

func QueryOf(r *http.Request) Query {
	return Query{values: r.URL.Query()}
}

func (q Query) raw(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

// Int returns def when key is absent and rejects values outside [lo, hi].
func (q Query) Int(key string, def, lo, hi int) (int, error) {
	raw := q.raw(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric")
	}
	if v < lo || v > hi {
		return 0, queryError(key, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return v, nil
}

// Bool is false when key is absent.
func (q Query) Bool(key string) (bool, error) {
	raw := q.raw(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, key+" must be a boolean")
	}
	return v, nil
}

// Token returns an opaque value such as a page cursor. Only printable ASCII
// without spaces is accepted.
func (q Query) Token(key string, maxLen int) (string, error) {
	raw := q.raw(key)
	if len(raw) > maxLen {
		return "", queryError(key, "query parameter is too long")
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] <= ' ' || raw[i] > '~' {
			return "", queryError(key, "query parameter contains invalid characters")
		}
	}
	return raw, nil
}

func queryError(key, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": key})
}
