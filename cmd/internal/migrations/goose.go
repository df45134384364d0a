package migrations

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

type gooseDB = *sql.DB

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info("migrate", "msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	// goose calls Fatalf on unrecoverable errors; surface them without exiting.
	l.log.Error("migrate", "msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func quoteIdent(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
