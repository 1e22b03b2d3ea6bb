package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/hub/cache"
	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/internal/apierror"
)

var tracer = otel.Tracer("hub.database")

// Datasource is the PostgreSQL implementation of IDataSource.
type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(cnf *config.Configuration, c cache.Cache) (*Datasource, error) {
	conn, err := ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return nil, err
	}
	return &Datasource{Conn: conn, Cache: c}, nil
}

// ConnectDB opens the pool. The schema is owned by the migrate command.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// dbError maps driver failures onto the error taxonomy. Unique violations
// become conflicts, everything else is internal.
func dbError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return apierror.NewAPIError(apierror.ErrConflict, msg+": duplicate record", err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, msg, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
