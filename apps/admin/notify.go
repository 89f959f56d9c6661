package main

import (
	"context"
	"fmt"
	"net/mail"
)

func (cli *commandLine) notify(ctx context.Context, clusterID string, to []*mail.Address) error {
	addrs := make([]mail.Address, 0, len(to))
	for _, a := range to {
		addrs = append(addrs, *a)
	}

	plan, err := cli.svc.NotifyOverdue(ctx, clusterID, addrs...)
	if err != nil {
		return err
	}
	if plan.Overdue == 0 {
		fmt.Fprintf(cli.out, "no overdue school in %s, nothing sent\n", plan.Cluster.Name)
		return nil
	}
	cli.logger.Info(fmt.Sprintf("overdue digest of %s sent to %d recipients", plan.Cluster.Name, len(addrs)))
	fmt.Fprintf(cli.out, "%d overdue schools in %s, digest sent\n", plan.Overdue, plan.Cluster.Name)
	return nil
}
