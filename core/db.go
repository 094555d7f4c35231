package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Close() error
		PingContext(ctx context.Context) error
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

// ParseOrdering reads a "field" or "-field" expression; a leading "-" means descending.
func ParseOrdering(expr string, allowed ...string) (DBOrdering, error) {
	expr = strings.TrimSpace(expr)
	ord := DBOrdering{Field: strings.TrimPrefix(expr, "-"), Ascending: !strings.HasPrefix(expr, "-")}
	for _, f := range allowed {
		if f == ord.Field {
			return ord, nil
		}
	}
	return DBOrdering{}, errors.Errorf("invalid ordering %q", expr)
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
