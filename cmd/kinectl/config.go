package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/config"
)

var forceInit bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configAddCmd)
	configCmd.AddCommand(configRemoveCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage target profiles",
	Long: fmt.Sprintf(`Manage named target profiles in the config file.

The file lives in the user config directory (override with %s).`, config.PathEnv),
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.CreateDefaultConfig(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		p := newPrinter()
		if p.JSON {
			p.PrintJSON(reg.Profiles)
			return nil
		}
		names := reg.ProfileNames()
		if len(names) == 0 {
			p.Println("No profiles. Create some with 'kinectl config init' or 'kinectl config add'.")
			return nil
		}
		for _, name := range names {
			marker := " "
			if reg.Preferences != nil && reg.Preferences.DefaultProfile == name {
				marker = "*"
			}
			p.Println(fmt.Sprintf("%s %-12s %s", marker, name, reg.Profiles[name]))
		}
		return nil
	},
}

var configAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save the target flags as a profile",
	Example: `  kinectl config add usb --port /dev/ttyUSB0 --baud 230400
  kinectl config add lab --ws ws://lab.local:8889/ws --timeout 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if targetOpts.explicit() != 1 {
			return fmt.Errorf("give exactly one of --port, --tcp, --ws and --sim")
		}
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		profile, err := targetOpts.profile(reg)
		if err != nil {
			return err
		}
		profile.ConnectTimeout = targetOpts.Timeout
		if err := reg.SetProfile(args[0], profile); err != nil {
			return err
		}
		if err := config.SaveGlobal(); err != nil {
			return err
		}
		fmt.Printf("Saved profile %q: %s\n", args[0], profile)
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !reg.RemoveProfile(args[0]) {
			return fmt.Errorf("unknown profile %q", args[0])
		}
		return config.SaveGlobal()
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if reg.GetProfile(args[0]) == nil {
			return fmt.Errorf("unknown profile %q", args[0])
		}
		if reg.Preferences == nil {
			reg.Preferences = &config.Preferences{}
		}
		reg.Preferences.DefaultProfile = args[0]
		return config.SaveGlobal()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
