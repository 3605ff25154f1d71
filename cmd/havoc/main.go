package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	root := &cobra.Command{
		Use:           "havoc",
		Short:         "Chaos experiment orchestration and safety-control engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", "http://127.0.0.1:8480", "address of a running engine, used by the admin commands")

	root.AddCommand(
		newServeCommand(),
		newValidateCommand(),
		newDefinitionsCommand(),
		newRunsCommand(),
		newTriggerCommand(),
		newHaltCommand(),
	)

	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
