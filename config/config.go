package config

import (
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/multidb"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
)

const (
	StoreInMemory = "inmemory"
	StoreRedis    = "redis"

	SubmitterHTTP = "http"
	SubmitterSMTP = "smtp"
	SubmitterNoop = "noop"
)

type App struct {
	Name     string `yaml:"name" validate:"required"`
	LogLevel string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
}

// HTTPServer struct for HTTP Transport configuration
type HTTPServer struct {
	Port           int           `yaml:"port" validate:"required,min=1,max=65535"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes" validate:"min=0"`
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"min=0"`
}

// Transport is a configuration for Admin Transport: HTTP, gRPC or anything
type Transport struct {
	HTTP      HTTPServer `yaml:"http"`
	Websocket Websocket  `yaml:"websocket"`
}

type Websocket struct {
	Disable bool `yaml:"disable"`
	Buffer  int  `yaml:"buffer" validate:"min=0"`
}

type RedisConn struct {
	Mode       string   `yaml:"mode" validate:"required,oneof=single sentinel cluster"`
	Address    []string `yaml:"address" validate:"required,min=1"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db" validate:"min=0"`
	MasterName string   `yaml:"masterName"`
}

// Redis is the list of redis connections by label.
type Redis map[string]RedisConn

// Store is where campaigns and their ledgers live between requests.
type Store struct {
	Type      string        `yaml:"type" validate:"required,oneof=inmemory redis"`
	RedisKey  string        `yaml:"redisKey" validate:"required_if=Type redis"`
	KeyPrefix string        `yaml:"keyPrefix"`
	MaxBytes  int           `yaml:"maxBytes" validate:"min=0"`
	TTL       time.Duration `yaml:"ttl" validate:"min=0"`
}

// History is the delivery log. Empty DBLabel keeps it in memory.
type History struct {
	DBLabel     string `yaml:"dbLabel"`
	AutoMigrate bool   `yaml:"autoMigrate"`
	MaxInMemory int    `yaml:"maxInMemory" validate:"min=0"`
}

type SMTP struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" validate:"min=0,max=65535"`
	TLSMode      string        `yaml:"tlsMode" validate:"omitempty,oneof=starttls tls none"`
	Greeting     string        `yaml:"greeting"`
	Signature    string        `yaml:"signature"`
	PauseBetween time.Duration `yaml:"pauseBetween" validate:"min=0"`
}

type Submitter struct {
	Type     string        `yaml:"type" validate:"required,oneof=http smtp noop"`
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"`
	SMTP     SMTP          `yaml:"smtp"`

	// NoopDelay simulates send time per recipient in dry runs.
	NoopDelay time.Duration `yaml:"noopDelay" validate:"min=0"`
}

type Worker struct {
	Num      int `yaml:"num" validate:"min=0"`
	MaxQueue int `yaml:"maxQueue" validate:"min=0"`
}

type Campaign struct {
	MaxInFlight     int64         `yaml:"maxInFlight" validate:"min=0"`
	PerItemEstimate time.Duration `yaml:"perItemEstimate" validate:"min=0"`
}

// Config contains application config
type Config struct {
	App               App                       `yaml:"app"`
	Transport         Transport                 `yaml:"transport"`
	DatabaseResources multidb.DatabaseResources `yaml:"databaseResources"`
	Redis             Redis                     `yaml:"redis" validate:"dive"`
	Store             Store                     `yaml:"store"`
	History           History                   `yaml:"history"`
	Submitter         Submitter                 `yaml:"submitter"`
	Worker            Worker                    `yaml:"worker"`
	Campaign          Campaign                  `yaml:"campaign"`
	Tracer            tracer.Config             `yaml:"tracer"`
}

// Default is the config used when the file leaves a field out.
func Default() Config {
	return Config{
		App: App{
			Name:     "bulkmail",
			LogLevel: "info",
		},
		Transport: Transport{
			HTTP: HTTPServer{
				Port:           3000,
				MaxUploadBytes: 10 << 20,
				RequestTimeout: 5 * time.Minute,
			},
		},
		Store: Store{
			Type:      StoreInMemory,
			KeyPrefix: "bulkmail:",
			TTL:       7 * 24 * time.Hour,
		},
		Submitter: Submitter{
			Type:     SubmitterHTTP,
			Endpoint: "http://127.0.0.1:8000/send_emails",
			Timeout:  5 * time.Minute,
		},
		Worker: Worker{
			Num:      4,
			MaxQueue: 100,
		},
		Campaign: Campaign{
			MaxInFlight:     4,
			PerItemEstimate: 2 * time.Second,
		},
		Tracer: tracer.Config{
			ServiceName: "bulkmail",
		},
	}
}
