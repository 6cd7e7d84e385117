package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/config"
)

func configCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the merged defaults, config file and environment. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(config.RedactedSettings(v))
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
