/*
Copyright 2025 Chronoworks Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ledgersync "github.com/chronoworks/ledgersync"
	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/database"
	"github.com/chronoworks/ledgersync/internal/notification"
)

// Ledgersync represents the CLI application, encapsulating the root Cobra command.
type Ledgersync struct {
	cmd *cobra.Command
}

// appInstance holds the pipeline service and its configuration for commands.
type appInstance struct {
	ledgersync *ledgersync.Ledgersync
	cnf        *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the pipeline before running any command.
func preRun(app *appInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("ledgersync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newLedgersync, err := setupLedgersync(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.ledgersync = newLedgersync
		app.cnf = cnf

		return nil
	}
}

// setupLedgersync wires the datasource and the ledger adapter into the service.
func setupLedgersync(cfg *config.Configuration) (*ledgersync.Ledgersync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	ledgerClient, err := ledgersync.NewHTTPLedgerClient()
	if err != nil {
		return nil, fmt.Errorf("error creating ledger client: %v", err)
	}

	newLedgersync, err := ledgersync.NewLedgersync(db, ledgerClient)
	if err != nil {
		return nil, fmt.Errorf("error creating ledgersync: %v", err)
	}
	return newLedgersync, nil
}

// NewCLI creates the command-line interface for the pipeline.
func NewCLI() *Ledgersync {
	var configFile string
	app := &appInstance{}

	var rootCmd = &cobra.Command{
		Use:   "ledgersync",
		Short: "Timesheet to ledger reconciliation pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./ledgersync.json", "Configuration file for the pipeline")
	rootCmd.PersistentPreRunE = preRun(app)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &Ledgersync{cmd: rootCmd}
}

// executeCLI runs the root command of the CLI application.
func (l *Ledgersync) executeCLI() {
	if err := l.cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()
	cli := NewCLI()
	cli.executeCLI()
}
