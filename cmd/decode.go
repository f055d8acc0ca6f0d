package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	nlmsg "github.com/scitags/nlmsg/netlink"
	"github.com/spf13/cobra"
)

func init() {
	decodeCmd.Flags().IntVar(&headerLen, "header-len", 0, "length of the family header following each netlink header")
}

var (
	headerLen int

	decodeCmd = &cobra.Command{
		Use:   "decode [file]",
		Short: "Walk the attributes of hex-encoded netlink messages.",
		Long: "Read one or more concatenated netlink messages as hex (whitespace is ignored) from a file\n" +
			"or the standard input and print their headers and attributes. Nested attributes are\n" +
			"walked recursively whenever they carry NLA_F_NESTED.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 1 {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}

			b, err := decodeHex(string(raw))
			if err != nil {
				return fmt.Errorf("error decoding hex input: %w", err)
			}

			msgs, err := nlmsg.ParseMessages(b)
			if err != nil {
				return err
			}

			for _, m := range msgs {
				printMessage(cmd.OutOrStdout(), m, headerLen)
			}
			return nil
		},
	}
)

func printMessage(w io.Writer, m *nlmsg.Message, hdrLen int) {
	h := m.Header()
	fmt.Fprintf(w, "message: len=%d type=%d flags=%#x seq=%d pid=%d\n",
		h.Length, h.Type, uint16(h.Flags), h.Sequence, h.PID)

	if data := m.Netlink().Data; hdrLen > 0 {
		fmt.Fprintf(w, "  family header: %s\n", hex.EncodeToString(data[:min(nlmsg.Align(hdrLen), len(data))]))
	}

	printAttrs(w, m.Attributes(hdrLen), 1)
}

func printAttrs(w io.Writer, it *nlmsg.Iterator, depth int) {
	indent := strings.Repeat("  ", depth)
	for a := range it.All() {
		fmt.Fprintf(w, "%sattr: type=%d len=%d", indent, a.Type(), a.Len())
		if a.NetByteorder() {
			fmt.Fprint(w, " net-byteorder")
		}

		if a.Nested() {
			fmt.Fprint(w, " nested\n")
			printAttrs(w, a.Attributes(), depth+1)
			continue
		}
		fmt.Fprintf(w, " %s\n", hex.EncodeToString(a.Bytes()))
	}

	if it.Remaining() > 0 {
		fmt.Fprintf(w, "%s%d trailing bytes\n", indent, it.Remaining())
	}
}
