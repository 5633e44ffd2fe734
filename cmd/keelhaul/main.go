// Keelhaul is a console automation toolkit for U-Boot style bootloaders.
//
// It drives a target's serial console (exposed over a TCP or WebSocket
// bridge) to inspect the bootloader, read and write memory, extract CPU
// register values, and stage payloads, without ever touching the target's
// flash. Operations that can disturb the target are gated behind explicit
// --allow-* flags.
//
// Usage:
//
//	keelhaul [command] [flags]
//
// See 'keelhaul --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keelhaul-sec/keelhaul/internal/logging"
	"github.com/keelhaul-sec/keelhaul/internal/version"
)

func main() {
	logging.InitializeFromEnv()
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "keelhaul",
	Short: "Bootloader console automation toolkit",
	Long: `Keelhaul drives a bootloader's serial console to inspect a target,
read and write its memory, extract CPU register values, and stage
payloads in RAM.

The console is reached over the network: point --device at a serial
bridge ("tcp://host:port" or "ws://host:port/path"), or use 'keelhaul
discover' to find bridges advertised on the local network.

Nothing here modifies flash. Operations that can reset the target or
execute code on it are refused unless the matching --allow-* flag is
given.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("keelhaul %s (commit: %s)\n", version.Version, version.Commit)
	},
}
