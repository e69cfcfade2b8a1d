package multidb

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.uber.org/multierr"
)

type SqlDbConnMakerConfig struct {
	Config DatabaseResources `validate:"required"`
}

type SqlDbConnMaker struct {
	disabled map[string]struct{} // list of disabled databases, using struct for minimal memory footprint
	dbSQL    map[string]*sqlx.DB // db key name => real connection
	dbDriver map[string]Driver   // db key name => driver name
	closer   []Closer
}

var _ MultiDB = (*SqlDbConnMaker)(nil)

// NewSqlDbConnMaker opens every enabled database. Connections are lazy, no query is sent here.
func NewSqlDbConnMaker(conf SqlDbConnMakerConfig) (*SqlDbConnMaker, error) {
	err := validator.Validate(conf)
	if err != nil {
		err = fmt.Errorf("sql db connection maker failed: %w", err)
		return nil, err
	}

	instance := &SqlDbConnMaker{
		disabled: make(map[string]struct{}),
		dbSQL:    make(map[string]*sqlx.DB),
		dbDriver: make(map[string]Driver),
		closer:   make([]Closer, 0),
	}

	err = instance.connect(conf.Config)
	if err != nil {
		// close previous opened connection if error happen
		err = multierr.Append(err, instance.Close())
		return nil, err
	}

	return instance, nil
}

func (i *SqlDbConnMaker) GetSqlx(driver Driver, key string) (*sqlx.DB, error) {
	key = normalizeLabel(key)
	if _, exists := i.disabled[key]; exists {
		return nil, fmt.Errorf("%w: db with key '%s' is disabled", ErrDBNotFound, key)
	}

	dbConnection, ok := i.dbSQL[key]
	if !ok {
		return nil, fmt.Errorf("%w: key '%s' is not exist on db list", ErrDBNotFound, key)
	}

	if registeredDriver := i.dbDriver[key]; driver != registeredDriver {
		return nil, fmt.Errorf("db key '%s' not using driver %s", key, driver)
	}

	return dbConnection, nil
}

func (i *SqlDbConnMaker) Close() (err error) {
	for _, c := range i.closer {
		if c == nil {
			continue
		}

		err = multierr.Append(err, c.Close())
	}

	i.closer = nil
	return
}

func normalizeLabel(label string) string {
	return strings.TrimSpace(strings.ToLower(label))
}

func (i *SqlDbConnMaker) connect(resources DatabaseResources) error {
	labels := make([]string, 0, len(resources))
	for label := range resources {
		labels = append(labels, label)
	}

	sort.Strings(labels)
	for _, rawLabel := range labels {
		dbConfig := resources[rawLabel]
		dbLabel := normalizeLabel(rawLabel)
		if err := validator.Var(dbLabel, "required,alphanum"); err != nil {
			err = fmt.Errorf("error connecting to database dbLabel '%s': %w", dbLabel, err)
			return err
		}

		if dbConfig.Disable {
			i.disabled[dbLabel] = struct{}{}
			continue
		}

		var sqlxConn *sqlx.DB
		switch dbConfig.Driver {
		case Postgres:
			driver := dbConfig.Driver.String()
			dsn := dbConfig.Postgres.DSN

			db, err := sql.Open(driver, dsn)
			if err != nil {
				err = fmt.Errorf("cannot open db connection '%s': %w", dbLabel, err)
				return err
			}

			if dbConfig.Postgres.Debug {
				db = sqldblogger.OpenDriver(dsn, db.Driver(), &QueryLogger{}, sqldblogger.WithConnectionIDFieldname(dbLabel))
			}

			sqlxConn = sqlx.NewDb(db, driver)

		default:
			return fmt.Errorf("not supported driver '%s' on database %s", dbConfig.Driver, dbLabel)
		}

		// don't forget to register in closer, using unique name to track in the Log
		i.dbSQL[dbLabel] = sqlxConn
		i.dbDriver[dbLabel] = dbConfig.Driver
		i.closer = append(i.closer, newNamedCloser(dbLabel, sqlxConn))
	}

	return nil
}
