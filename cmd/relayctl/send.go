package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ashureev/llama-relay/internal/client"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	sendAddr      string
	sendTopic     string
	sendLocalPort int
	sendTimeout   time.Duration
	sendRaw       bool
)

var (
	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorReplyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send a message and print the reply",
	Long: `Send one message on a topic and print the relay's reply.

With no message arguments every line read from stdin is sent as its own
message over the same socket, so the lines form one conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendTopic == "" && !sendRaw {
			return fmt.Errorf("--topic is required")
		}

		conn, err := client.Dial(cmd.Context(), sendAddr, sendLocalPort)
		if err != nil {
			return err
		}
		defer conn.Close()

		out := cmd.OutOrStdout()

		if len(args) > 0 {
			reply, err := sendOne(cmd.Context(), conn, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, styleReply(reply))
			return nil
		}

		in := cmd.InOrStdin()
		f, isFile := in.(*os.File)
		interactive := isFile && term.IsTerminal(int(f.Fd()))
		if interactive {
			fmt.Fprintf(out, "Talking to %s from %s on topic %q. Ctrl-D to quit.\n",
				sendAddr, conn.LocalAddr(), sendTopic)
		}

		scanner := bufio.NewScanner(in)
		for {
			if interactive {
				fmt.Fprint(out, promptStyle.Render("> "))
			}
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			reply, err := sendOne(cmd.Context(), conn, line)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, styleReply(reply))
		}
		return scanner.Err()
	},
}

func sendOne(ctx context.Context, conn *client.Conn, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if sendRaw {
		return conn.SendRaw(ctx, []byte(text))
	}
	return conn.Send(ctx, sendTopic, text)
}

// errorReplyPrefixes are the prefixes of every error reply the relay sends.
var errorReplyPrefixes = []string{
	"Error: ",
	"Error executing curl command: ",
	"Failed to decode JSON: ",
}

func isErrorReply(reply string) bool {
	for _, prefix := range errorReplyPrefixes {
		if strings.HasPrefix(reply, prefix) {
			return true
		}
	}
	return false
}

func styleReply(reply string) string {
	if isErrorReply(reply) {
		return errorReplyStyle.Render(reply)
	}
	return replyStyle.Render(reply)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendAddr, "addr", "127.0.0.1:8765", "Relay address")
	sendCmd.Flags().StringVarP(&sendTopic, "topic", "t", "", "Conversation topic")
	sendCmd.Flags().IntVar(&sendLocalPort, "local-port", 0, "Bind this local port so the conversation continues across runs")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", client.DefaultTimeout, "How long to wait for each reply")
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "Send each message as a raw datagram payload instead of JSON")
}
