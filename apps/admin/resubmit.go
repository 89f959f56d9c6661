package main

import (
	"context"
	"fmt"

	"github.com/trezcool/ukaguzi/core/inspection"
)

func (cli *commandLine) resubmit(ctx context.Context, username, password string) error {
	var via []inspection.Tracker
	if username != "" {
		via = append(via, cli.asUser(username, password))
	}

	res, err := cli.svc.ResubmitPending(ctx, via...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d submitted, %d still pending\n", res.Submitted, res.Failed)
	return nil
}
