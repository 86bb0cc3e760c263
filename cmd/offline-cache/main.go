package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "offline-cache",
		Short:   "Cache-first offline proxy with versioned cache generations",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default $OFFLINE_CACHE_CONFIG_FILE or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newGenerationsCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
