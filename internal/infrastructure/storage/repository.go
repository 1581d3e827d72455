package storage

import (
	"errors"
	"io"
	"strings"

	"provindex/internal/application"
	"provindex/internal/infrastructure/mysql"
	"provindex/internal/infrastructure/sqlite"
)

const sqliteScheme = "sqlite://"

// ReportStore is a run report backend that owns a database handle.
type ReportStore interface {
	application.ReportStore
	io.Closer
}

// OpenReportStore picks the backend from dsn: "sqlite://<path>" opens a local SQLite file,
// anything else is handed to the MySQL driver.
func OpenReportStore(dsn string) (ReportStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("report dsn is required")
	}
	if path, ok := strings.CutPrefix(dsn, sqliteScheme); ok {
		repo, err := sqlite.NewRepository(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	repo, err := mysql.NewRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
