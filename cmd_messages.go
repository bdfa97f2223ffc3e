package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mchat/chat"
	"mchat/models"
	"mchat/protocol"
)

var (
	flagSize   int
	flagOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history <username>",
	Short: "Print one page of the conversation, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		size := flagSize
		if size <= 0 {
			size = env.cfg.PageSize
		}
		page, err := env.client.Messages(ctx, args[0], size, flagOffset)
		if err != nil {
			return err
		}
		for i := len(page) - 1; i >= 0; i-- {
			fmt.Println(formatMessage(page[i]))
		}
		return nil
	},
}

func formatMessage(m models.Message) string {
	mark := ""
	if m.Read {
		mark = " ✓✓"
	}
	return fmt.Sprintf("%s  %s → %s: %s%s",
		m.Timestamp().Format("2006-01-02 15:04:05"), m.Sender, m.Recipient, m.Text, mark)
}

var sendCmd = &cobra.Command{
	Use:   "send <username> <text>",
	Short: "Send a message over the socket",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if strings.TrimSpace(text) == "" {
			return chat.ErrEmptyMessage
		}
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		me, err := env.client.User(ctx)
		if err != nil {
			return err
		}
		conn, err := protocol.Dial(ctx, env.cfg.WebSocketURL(), env.client.Jar())
		if err != nil {
			return err
		}
		defer conn.Close()

		return conn.Send(models.Message{
			Text:      text,
			Sender:    me,
			Recipient: args[0],
			Time:      time.Now().UnixMilli(),
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <username>",
	Short: "Mark the conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return env.client.MarkRead(ctx, args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagSize, "size", 0, "page size (defaults to the configured page size)")
	historyCmd.Flags().IntVar(&flagOffset, "offset", 0, "messages to skip, counted from the newest")
	rootCmd.AddCommand(historyCmd, sendCmd, readCmd)
}
