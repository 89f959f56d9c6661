package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB // nil when pending submissions are kept in memory
	svc    inspection.Service
	out    io.Writer
	logger core.Logger

	// asUser returns a tracker acting on behalf of the given account.
	asUser func(username, password string) inspection.Tracker
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]             - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  resubmit [-username USERNAME]      - retry the pending submissions, as USERNAME when given")
	fmt.Fprintln(cli.out, "  notify -cluster ID -to ADDRESSES   - email the overdue schools of a cluster")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resubmitCmd := flag.NewFlagSet("resubmit", flag.ContinueOnError)
	resubmitCmd.SetOutput(cli.out)
	resubmitUname := resubmitCmd.String("username", "", "Tracker account to resubmit as. The password will be prompted next.")

	notifyCmd := flag.NewFlagSet("notify", flag.ContinueOnError)
	notifyCmd.SetOutput(cli.out)
	notifyCluster := notifyCmd.String("cluster", "", "The cluster's org unit ID.")
	notifyTo := notifyCmd.String("to", "", "Comma separated list of recipients.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "resubmit":
		if err := resubmitCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resubmitUname == "" {
			return cli.resubmit(ctx, "", "")
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resubmitCmd.Usage()
			return errHelp
		}
		return cli.resubmit(ctx, *resubmitUname, string(pwd))

	case "notify":
		if err := notifyCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *notifyCluster == "" || *notifyTo == "" {
			notifyCmd.Usage()
			return errHelp
		}
		to, err := mail.ParseAddressList(*notifyTo)
		if err != nil {
			return fmt.Errorf("invalid recipients: %w", err)
		}
		return cli.notify(ctx, *notifyCluster, to)

	default:
		cli.printUsage()
		return errHelp
	}
}
