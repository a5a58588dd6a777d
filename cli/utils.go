package cli

import "github.com/spf13/cobra"

// applyConfigFlag overrides the loaded configuration from the --config flag
// when it is set.
func applyConfigFlag(cmd *cobra.Command, cfg *Config) error {
	cfgFile, _ := cmd.Flags().GetString(configFlag)
	if cfgFile == "" {
		return nil
	}
	return LoadConfigFromFlag(cfgFile, cfg)
}
