package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"doclocker/cmd/api/cli"
)

var (
	version = "0.1.0-dev"
	commit  = "main"
)

// @title						Document Locker API
// @version					1.0
// @BasePath					/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewServeCommand())
	root.AddCommand(cli.NewMigrateCommand())
	root.AddCommand(cli.NewTokenCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
