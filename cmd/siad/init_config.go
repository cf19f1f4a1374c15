package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Solarigin/Like-Gallery/internal/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default config.yaml if one does not already exist",
	RunE:  runInitConfig,
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return wrapConfigError(err)
		}
		path = p
	}

	cfgStore, err := config.Open(path)
	if err != nil {
		return wrapConfigError(err)
	}
	cur := cfgStore.Get()
	fmt.Printf("config ready at %s (base_dir=%s, port=%d)\n", path, cur.BaseDir, cur.Port)
	return nil
}
