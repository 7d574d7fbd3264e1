package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
)

func queryOf(rawQuery string) Query {
	return QueryOf(httptest.NewRequest(http.MethodGet, "/api/v1/galleries?"+rawQuery, nil))
}

func TestQueryInt(t *testing.T) {
	if v, err := queryOf("").Int("limit", 20, 1, 100); err != nil || v != 20 {
		t.Fatalf("expected default 20, got %d (%v)", v, err)
	}
	if v, err := queryOf("limit=%2050%20").Int("limit", 20, 1, 100); err != nil || v != 50 {
		t.Fatalf("expected 50, got %d (%v)", v, err)
	}
	_, err := queryOf("limit=ten").Int("limit", 20, 1, 100)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = queryOf("limit=101").Int("limit", 20, 1, 100)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestQueryBool(t *testing.T) {
	if v, err := queryOf("").Bool("confirm"); err != nil || v {
		t.Fatalf("absent confirm should be false, got %v (%v)", v, err)
	}
	if v, err := queryOf("confirm=true").Bool("confirm"); err != nil || !v {
		t.Fatalf("expected true, got %v (%v)", v, err)
	}
	_, err := queryOf("confirm=perhaps").Bool("confirm")
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestQueryToken(t *testing.T) {
	if v, err := queryOf("cursor=eyJ0IjoxfQ%3D%3D").Token("cursor", 64); err != nil || v != "eyJ0IjoxfQ==" {
		t.Fatalf("expected cursor passed through, got %q (%v)", v, err)
	}
	_, err := queryOf("cursor="+strings.Repeat("a", 65)).Token("cursor", 64)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = queryOf("cursor=ab%0Acd").Token("cursor", 64)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = queryOf("cursor=ab%C3%A9").Token("cursor", 64)
	requireCode(t, err, pkgerrors.CodeValidation)
}
