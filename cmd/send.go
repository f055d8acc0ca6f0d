package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mdnetlink "github.com/mdlayher/netlink"
	"github.com/scitags/nlmsg/metrics"
	"github.com/scitags/nlmsg/netlink"
	"github.com/spf13/cobra"
)

func init() {
	sendCmd.Flags().StringVar(&protocolFlag, "protocol", "", "protocol family overriding the configuration (name or number)")
	sendCmd.Flags().IntVar(&replyHeaderLen, "reply-header-len", 0, "length of the family header of the replies")
	sendCmd.Flags().BoolVar(&waitFlag, "wait", false, "keep running until interrupted so that metrics can be scraped")
}

var (
	protocolFlag   string
	replyHeaderLen int
	waitFlag       bool

	sendCmd = &cobra.Command{
		Use:   "send <description.yaml>",
		Short: "Send a message to the kernel and print the replies.",
		Long: "Send the message described in the given YAML file over a socket configured as per\n" +
			"the configuration file. Replies are waited for and printed when the message asks\n" +
			"for an acknowledgement or a dump.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := ReadConf(confPath)
			if err != nil {
				return err
			}
			slog.Debug("loaded configuration", "conf", conf)

			if protocolFlag != "" {
				if err := conf.Socket.Protocol.UnmarshalYAML([]byte(protocolFlag)); err != nil {
					return err
				}
			}

			m, err := readMessage(args[0])
			if err != nil {
				return err
			}

			s, err := netlink.Dial(conf.Socket)
			if err != nil {
				return fmt.Errorf("error opening the netlink socket: %w", err)
			}
			defer s.Close()
			slog.Debug("opened socket", ProtocolKey, s.Protocol(), PortKey, s.LocalPort())

			if conf.Metrics != nil {
				exp, err := metrics.New(conf.Metrics)
				if err != nil {
					return err
				}
				exp.Track(s)
				exp.Start()
				defer func() {
					if err := exp.Cleanup(); err != nil {
						slog.Error("error cleaning up the metrics exporter", "err", err)
					}
				}()
			}

			h := m.Header()
			if h.Flags&(mdnetlink.Acknowledge|mdnetlink.Dump) == 0 {
				n, err := s.Send(m, h.Type, h.Flags)
				if err != nil {
					return err
				}
				slog.Info("sent message", "bytes", n, "seq", m.Header().Sequence)
			} else {
				replies, err := s.Execute(m, h.Type, h.Flags)
				if err != nil {
					return err
				}
				slog.Info("got replies", "n", len(replies), "seq", m.Header().Sequence)
				for _, r := range replies {
					printMessage(cmd.OutOrStdout(), r, replyHeaderLen)
				}
			}

			if waitFlag {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				sig := <-sigChan
				slog.Debug("caught signal", "signal", sig)
			}

			return nil
		},
	}
)
