package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

func TestLoggingLevelFollowsStatus(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
	}{
		{path: "/api/v1/galleries", status: http.StatusCreated, level: "info"},
		{path: "/api/public/galleries/wedding-smith", status: http.StatusUnauthorized, level: "warn"},
		{path: "/api/v1/galleries", status: http.StatusServiceUnavailable, level: "error"},
		{path: "/health/ready", status: http.StatusOK, level: "debug"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf, Level: zerolog.DebugLevel})
		handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("{}"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

		var line struct {
			Level  string `json:"level"`
			Status int    `json:"status"`
			Bytes  int    `json:"bytes"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
			t.Fatalf("%s: parse log line %q: %v", tc.path, buf.String(), err)
		}
		if line.Level != tc.level || line.Status != tc.status || line.Bytes != 2 {
			t.Fatalf("%s %d: got %+v", tc.path, tc.status, line)
		}
	}
}
