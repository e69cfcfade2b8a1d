package plan

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mitchellh/cli"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/container"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
)

const (
	ExitSuccess = 0
	ExitErr     = -1
)

// Cmd prints the plan of a campaign as JSON without sending anything.
type Cmd struct {
	flags     *flag.FlagSet
	out       io.Writer
	senders   string
	receivers string
	subject   string
	body      string
	quota     int
}

var _ cli.Command = (*Cmd)(nil)

func NewCmd(out io.Writer) func() (cli.Command, error) {
	return func() (cli.Command, error) {
		cmd := &Cmd{out: out}
		cmd.flags = flag.NewFlagSet("plan", flag.ContinueOnError)
		cmd.flags.StringVar(&cmd.senders, "senders", "senders.csv", "CSV with name, email and password columns")
		cmd.flags.StringVar(&cmd.receivers, "receivers", "receivers.csv", "CSV with name and email columns")
		cmd.flags.StringVar(&cmd.subject, "subject", "", "Subject template, {column} tokens are filled per recipient")
		cmd.flags.StringVar(&cmd.body, "body", "", "Body template")
		cmd.flags.IntVar(&cmd.quota, "quota", campaignsvc.DefaultQuota, "Recipients per sender")
		return cmd, nil
	}
}

func (c *Cmd) Help() string {
	return `Usage: bulkmail plan -senders senders.csv -receivers receivers.csv [-subject s] [-body b] [-quota 20]

  Normalize both files, assign recipients to senders and preview the first rendered messages.`
}

func (c *Cmd) Synopsis() string {
	return "Preview a campaign without sending"
}

func (c *Cmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		log.Printf("error parsing argument: %s", err)
		return ExitErr
	}

	out, err := c.plan(context.Background())
	if err != nil {
		log.Printf("plan failed: %s", err)
		return ExitErr
	}

	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err = enc.Encode(out); err != nil {
		log.Printf("write plan: %s", err)
		return ExitErr
	}

	return ExitSuccess
}

func (c *Cmd) plan(ctx context.Context) (out campaignsvc.OutPlan, err error) {
	senderFile, err := os.ReadFile(c.senders)
	if err != nil {
		err = fmt.Errorf("read senders: %w", err)
		return
	}

	receiverFile, err := os.ReadFile(c.receivers)
	if err != nil {
		err = fmt.Errorf("read receivers: %w", err)
		return
	}

	conf := config.Default()
	conf.Submitter.Type = config.SubmitterNoop
	conf.Transport.Websocket.Disable = true

	dep, err := container.Setup(ctx, &conf)
	if err != nil {
		return
	}

	defer func() {
		_ = dep.Close()
	}()

	return dep.Services().Campaign().Plan(ctx, campaignsvc.InputPlan{
		SenderFile:          senderFile,
		ReceiverFile:        receiverFile,
		Subject:             c.subject,
		Body:                c.body,
		RecipientsPerSender: c.quota,
	})
}
