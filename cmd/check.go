package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Desjajja/o2a/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration document",
	Long:  `Validate the provider configuration document without starting the proxy.`,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		color.Red("Cannot read %s: %v", configPath, err)
		return err
	}

	var cfg config.ProxyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		color.Red("Configuration invalid: %v", err)
		return err
	}

	if err := cfg.Validate(); err != nil {
		color.Red("Configuration invalid: %v", err)
		return err
	}

	warned := false
	for _, provider := range cfg.Providers {
		if len(provider.Models) == 0 {
			if !warned {
				color.Yellow("Warnings:")
				warned = true
			}

			fmt.Printf(" - Provider %s has no model mappings\n", provider.Name)
		}
	}

	color.Green("Configuration OK. Providers:")
	for _, provider := range cfg.Providers {
		fmt.Printf(" - %s (%s) -> %d mappings\n", provider.Name, provider.BaseURL, len(provider.Models))
	}

	return nil
}
