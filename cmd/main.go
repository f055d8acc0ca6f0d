package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/scitags/nlmsg/netlink"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confPath, "conf", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in the log")
}

var (
	rootCmd = &cobra.Command{
		Use:   "nlmsg",
		Short: "Craft, inspect and exchange netlink messages.",
		Long: "nlmsg encodes and decodes netlink messages and their type-length-value attributes and\n" +
			"talks to the kernel over netlink sockets. Socket settings, sock_diag filters and the\n" +
			"metrics exporter are configured through a YAML file.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logLevelMap[logLevelFlag]
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevelFlag)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				AddSource:   level < slog.LevelInfo,
				Level:       level,
				ReplaceAttr: logReplacements,
			}))
			slog.SetDefault(logger)

			return nil
		},
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\n", builtCommit)
		},
	}

	familiesCmd = &cobra.Command{
		Use:   "families",
		Short: "List the netlink protocol families.",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NUMBER\tNAME")
			for _, p := range netlink.Protocols() {
				fmt.Fprintf(w, "%d\t%s\n", int(p), p)
			}
			w.Flush()
		},
	}

	confPath     string
	logLevelFlag string
	logTimeFlag  bool
	builtCommit  = "dev"
)

func init() {
	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(familiesCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sockDiagCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
