package main

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/fsbroker/pkg/config"
)

func newInitCommand() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Long: `Write a configuration file containing every setting with its default
value. Without --config the file goes to the default location
($XDG_CONFIG_HOME/fsbroker/config.yaml or ~/.config/fsbroker/config.yaml).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				written string
				err     error
			)
			if path != "" {
				written, err = config.InitConfigToPath(path, force)
			} else {
				written, err = config.InitConfig(force)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Configuration written to %s\n", written)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVarP(&path, "config", "c", "", "destination path")
	return cmd
}
