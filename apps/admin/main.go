package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/ukaguzi/apps/shared"
	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
)

func main() {
	conf := core.NewConfig()

	deps, err := shared.Setup(context.Background(), conf, "ADMIN")
	if err != nil {
		log.Fatalf("setting up dependencies: %v", err)
	}

	// start CLI
	cli := commandLine{
		svc:    deps.InspectionSvc,
		out:    os.Stdout,
		logger: deps.Logger,
		asUser: func(username, password string) inspection.Tracker {
			return deps.Tracker.WithCredentials(username, password)
		},
	}
	if deps.DB != nil {
		cli.db = deps.DB.DB
	}

	err = cli.run(context.Background(), os.Args)
	deps.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
