package multidb

import (
	"errors"
	"io"

	"github.com/jmoiron/sqlx"
)

var ErrDBNotFound = errors.New("database not found")

type MultiDB interface {
	GetSqlx(driver Driver, key string) (*sqlx.DB, error)
	io.Closer
}
