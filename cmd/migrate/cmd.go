package migrate

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mitchellh/cli"
	"github.com/satori/uuid"
	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/multidb"
)

const (
	ExitSuccess = 0
	ExitErr     = -1
)

// Cmd creates the delivery history table on the database named by history.dbLabel.
type Cmd struct {
	flags      *flag.FlagSet
	configFile string
	envFile    string
}

var _ cli.Command = (*Cmd)(nil)

func NewCmd() (cli.Command, error) {
	cmd := &Cmd{}
	cmd.flags = flag.NewFlagSet("migrate", flag.ContinueOnError)
	cmd.flags.StringVar(&cmd.configFile, "config", "config.yml", "Config file to load")
	cmd.flags.StringVar(&cmd.configFile, "c", "config.yml", "Alias for config file to load")
	cmd.flags.StringVar(&cmd.envFile, "env", ".env", "Env file with BULKMAIL_* overrides")
	return cmd, nil
}

func (c *Cmd) Help() string {
	return `Usage: bulkmail migrate [-c config.yml]

  Create the delivery history table. Safe to run more than once.`
}

func (c *Cmd) Synopsis() string {
	return "Migrate the delivery history database"
}

func (c *Cmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		log.Printf("error parsing argument: %s", err)
		return ExitErr
	}

	ctx := logger.Inject(context.Background(), logger.Tracer{
		RemoteAddr: "system",
		AppTraceID: uuid.NewV4().String(),
	})

	conf, err := config.Load(c.configFile, c.envFile)
	if err != nil {
		log.Printf("error load config: %s", err)
		return ExitErr
	}

	logger.SetGlobalLogger(logger.NewZapJSON(conf.App.LogLevel, os.Stdout))

	if err = migrate(ctx, conf); err != nil {
		logger.Error(ctx, "migration failed", logger.KV("error", err))
		return ExitErr
	}

	logger.Info(ctx, "success migrate")
	return ExitSuccess
}

func migrate(ctx context.Context, conf *config.Config) (err error) {
	label := conf.History.DBLabel
	if label == "" {
		return fmt.Errorf("history.dbLabel is empty, in-memory history needs no migration")
	}

	res := conf.DatabaseResources[label]
	if res.Driver != multidb.Postgres {
		return fmt.Errorf("unknown dialect %s", res.Driver)
	}

	dbSqlConn, err := multidb.NewSqlDbConnMaker(multidb.SqlDbConnMakerConfig{Config: conf.DatabaseResources})
	if err != nil {
		return err
	}

	defer func() {
		if _err := dbSqlConn.Close(); _err != nil {
			logger.Error(ctx, "error close db", logger.KV("error", _err))
		}
	}()

	sqlConn, err := dbSqlConn.GetSqlx(multidb.Postgres, label)
	if err != nil {
		return err
	}

	if err = sqlConn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db error: %w", err)
	}

	repo, err := historyrepo.Postgres(historyrepo.RepoPostgresConfig{Connection: sqlConn})
	if err != nil {
		return err
	}

	logger.Info(ctx, "trying to migrate", logger.KV("db", label))
	return repo.Migrate(ctx)
}
