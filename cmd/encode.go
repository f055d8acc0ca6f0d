package main

import (
	"encoding/hex"
	"fmt"
	"os"

	nlmsg "github.com/scitags/nlmsg/netlink"
	"github.com/spf13/cobra"
)

func init() {
	encodeCmd.Flags().BoolVar(&rawOutput, "raw", false, "write the binary message instead of a hex dump")
}

var (
	rawOutput bool

	encodeCmd = &cobra.Command{
		Use:   "encode <description.yaml>",
		Short: "Encode a YAML message description.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readMessage(args[0])
			if err != nil {
				return err
			}

			if rawOutput {
				_, err := cmd.OutOrStdout().Write(m.Bytes())
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), hex.Dump(m.Bytes()))
			return nil
		},
	}
)

func readMessage(path string) (*nlmsg.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the message description: %w", err)
	}

	d, err := ParseMessageDesc(raw)
	if err != nil {
		return nil, err
	}

	m, err := d.Build()
	if err != nil {
		return nil, fmt.Errorf("error building the message: %w", err)
	}

	return m, nil
}
