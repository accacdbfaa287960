package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"doclocker/internal/access"
)

const pgUniqueViolation = "23505"

// uniqueViolation returns the violated constraint name, or "" if err is not a
// unique violation.
func uniqueViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// scopePredicate compiles a visibility scope over the documents alias d.
func scopePredicate(s access.Scope, next int) (string, []any, int) {
	switch {
	case s.All:
		return "", nil, next
	case s.None:
		return "FALSE", nil, next
	}

	var (
		ors  []string
		args []any
	)
	if s.OwnerID != "" {
		ors = append(ors, fmt.Sprintf("d.created_by = $%d", next))
		args = append(args, s.OwnerID)
		next++
	}
	if s.Department != "" {
		ors = append(ors, fmt.Sprintf("d.department = $%d", next))
		args = append(args, s.Department)
		next++
	}
	if s.AnyRole != "" {
		ors = append(ors, fmt.Sprintf("$%d = ANY(d.access_roles)", next))
		args = append(args, string(s.AnyRole))
		next++
	}
	if len(ors) == 0 {
		return "FALSE", nil, next
	}
	return "(" + strings.Join(ors, " OR ") + ")", args, next
}

func where(preds []string) string {
	if len(preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(preds, " AND ")
}
