package multidb

type Driver string

func (d Driver) String() string {
	return string(d)
}

const (
	Postgres Driver = "postgres"
)

type GoSqlDb struct {
	// Debug logs every query through pkg/logger at debug level.
	Debug bool   `yaml:"debug"`
	DSN   string `yaml:"dsn"` // Data Source Name
}

type DatabaseResource struct {
	Disable bool   `yaml:"disable"`
	Driver  Driver `yaml:"driver"`

	// per driver configuration
	Postgres GoSqlDb `yaml:"postgres"`
}

type DatabaseResources map[string]DatabaseResource
