package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"
	"github.com/yusufsyaifudin/bulkmail/cmd/api"
	"github.com/yusufsyaifudin/bulkmail/cmd/migrate"
	"github.com/yusufsyaifudin/bulkmail/cmd/plan"
)

func main() {
	const appName, appVersion = "bulkmail", "1.0.0"

	apiCmd := api.NewCmd(appName, appVersion)

	c := cli.NewCLI(appName, appVersion)
	c.Args = os.Args[1:]
	c.Autocomplete = true
	c.Commands = map[string]cli.CommandFactory{
		"":        apiCmd, // default command if no subcommand defined
		"api":     apiCmd,
		"migrate": migrate.NewCmd,
		"plan":    plan.NewCmd(os.Stdout),
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}
