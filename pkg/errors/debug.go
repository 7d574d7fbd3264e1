package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGHint       string `json:"pg_hint,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGHint = pgxErr.Hint
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGHint = pqErr.Hint
		d.PGMessage = pqErr.Message
		return d
	}

	return d
}

// StoreDetails flattens a record-store error into the code/message/details/hint
// quadruple surfaced to callers. Non-database errors only fill message.
func StoreDetails(err error) map[string]any {
	if err == nil {
		return nil
	}
	d := Dump(err)
	message := d.PGMessage
	if message == "" {
		message = rootMessage(err)
	}
	details := map[string]any{"message": message}
	if d.PGCode != "" {
		details["code"] = d.PGCode
	}
	if d.PGDetail != "" {
		details["details"] = d.PGDetail
	}
	if d.PGHint != "" {
		details["hint"] = d.PGHint
	}
	if d.PGConstraint != "" {
		details["constraint"] = d.PGConstraint
	}
	return details
}

// SummarizeStore renders StoreDetails as a single line, e.g.
// "code=23505 message=duplicate key hint=...".
func SummarizeStore(err error) string {
	details := StoreDetails(err)
	if details == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, key := range []string{"code", "message", "details", "hint"} {
		if v, ok := details[key]; ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}

func rootMessage(err error) string {
	root := err
	for next := errors.Unwrap(root); next != nil; next = errors.Unwrap(root) {
		root = next
	}
	return root.Error()
}
