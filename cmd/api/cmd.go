package api

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/cli"
	"github.com/satori/uuid"
	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/container"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi"
)

const (
	ExitSuccess = 0
	ExitErr     = -1

	shutdownTimeout = 30 * time.Second
)

type Cmd struct {
	flags      *flag.FlagSet
	appName    string
	appVersion string
	configFile string
	envFile    string
}

func NewCmd(appName, appVersion string) func() (cli.Command, error) {
	return func() (cli.Command, error) {
		cmd := &Cmd{
			flags:      &flag.FlagSet{},
			appName:    appName,
			appVersion: appVersion,
		}
		err := cmd.init()
		return cmd, err
	}
}

var _ cli.Command = (*Cmd)(nil)
var _ cli.CommandFactory = NewCmd("", "")

func (c *Cmd) init() error {
	c.flags = flag.NewFlagSet("api", flag.ContinueOnError)
	c.flags.StringVar(&c.configFile, "config", "config.yml",
		"Config file to load")
	c.flags.StringVar(&c.configFile, "c", "config.yml",
		"Alias for config file to load")
	c.flags.StringVar(&c.envFile, "env", ".env",
		"Env file with BULKMAIL_* overrides, skipped when missing")
	return nil
}

func (c *Cmd) Help() string {
	return `Usage: bulkmail api [-c config.yml] [-env .env]

  Start the HTTP server for campaign planning, submission, retry and live progress.`
}

func (c *Cmd) Run(args []string) int {
	err := c.flags.Parse(args)
	if err != nil {
		log.Printf("error parsing config argument: %s", err)
		return ExitErr
	}

	// ** define system context
	ctx := logger.Inject(context.Background(), logger.Tracer{
		RemoteAddr: "system",
		AppTraceID: uuid.NewV4().String(),
	})

	// ** load config file
	configVal, err := config.Load(c.configFile, c.envFile)
	if err != nil {
		log.Printf("error load config: %s", err)
		return ExitErr
	}

	// ** set global logger
	zapLog := logger.NewZapJSON(configVal.App.LogLevel, os.Stdout)
	logger.SetGlobalLogger(zapLog)
	defer func() {
		_ = zapLog.Sync()
	}()

	logger.Info(ctx, "~ logger already prepared")

	// ** tracer
	if configVal.Tracer.ServiceName == "" {
		configVal.Tracer.ServiceName = c.appName
	}

	shutdownTracer, err := tracer.InitTraceProvider(configVal.Tracer)
	if err != nil {
		logger.Error(ctx, "~ error setup tracer", logger.KV("error", err))
		return ExitErr
	}

	defer func() {
		if _err := shutdownTracer(context.Background()); _err != nil {
			logger.Error(ctx, "~ error shutdown tracer", logger.KV("error", _err))
		}
	}()

	logger.Info(ctx, "~ setup container")
	defaultContainer, err := container.Setup(ctx, configVal)
	if err != nil {
		logger.Error(ctx, "~ error setup container", logger.KV("error", err))
		return ExitErr
	}

	defer func() {
		logger.Info(ctx, "~ closing container")
		if _err := defaultContainer.Close(); _err != nil {
			logger.Error(ctx, "~ error close container", logger.KV("error", _err))
		}
	}()

	// ** HTTP TRANSPORT
	logger.Info(ctx, "~ prepare http transport")
	server, err := restapi.NewHTTPTransport(restapi.Config{
		AppServiceName:  c.appName,
		AppVersion:      c.appVersion,
		CampaignService: defaultContainer.Services().Campaign(),
		Hub:             defaultContainer.Hub(),
		MaxUploadBytes:  configVal.Transport.HTTP.MaxUploadBytes,
		RequestTimeout:  configVal.Transport.HTTP.RequestTimeout,
	})
	if err != nil {
		logger.Error(ctx, "~ prepare http transport error", logger.KV("error", err))
		return ExitErr
	}

	httpPort := fmt.Sprintf(":%d", configVal.Transport.HTTP.Port)
	httpServer := &http.Server{
		Addr:              httpPort,
		Handler:           server.Server(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var apiErrChan = make(chan error, 1)
	go func() {
		logger.Info(ctx, fmt.Sprintf("~ http transport is up on port %s", httpPort))
		apiErrChan <- httpServer.ListenAndServe()
	}()

	// ** listen for sigterm signal
	var signalChan = make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-signalChan:
		logger.Info(ctx, "exiting http server")

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if _err := httpServer.Shutdown(shutdownCtx); _err != nil {
			logger.Error(ctx, "error shutdown", logger.KV("error", _err))
		}

	case err := <-apiErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "error HTTP API", logger.KV("error", err))
			return ExitErr
		}
	}

	return ExitSuccess
}

func (c *Cmd) Synopsis() string {
	return `Start the bulk mail HTTP server`
}
