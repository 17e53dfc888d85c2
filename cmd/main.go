package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"loankeeper/cmd/executor"
	"loankeeper/cmd/keys"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Loankeeper CMD"
	app.Usage = "The loankeeper command line interface"

	app.Commands = []cli.Command{
		rebalancerCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	rebalancerCMD = cli.Command{
		Name:        "rebalancer",
		Usage:       "run the rebalance loop",
		Action:      rebalancerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the unattended LTV rebalance loop`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "manage exchange credentials",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Encrypt exchange credentials for env storage`,
	}
)

func rebalancerAction(_ *cli.Context) error {

	logrus.Info("Starting rebalancer CMD")
	logrus.WithField("cmd", "rebalancer")

	loop := &executor.Executor{}
	err := loop.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func keysAction(_ *cli.Context) error {

	logrus.Info("Starting keys CMD")
	logrus.WithField("cmd", "keys")

	k := &keys.Keys{}
	err := k.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
