package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lumenworks/gemgate/internal/config"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		urlFlag   string
		tokenFlag string
		sessionID string
		message   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to a running gateway and chat from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := urlFlag
			if target == "" {
				cfg, err := config.Load(resolveConfigPath())
				if err != nil {
					return err
				}
				snap := cfg.Snapshot()
				target = fmt.Sprintf("ws://%s:%d/ws", snap.Gateway.Host, snap.Gateway.Port)
				if tokenFlag == "" {
					tokenFlag = snap.Gateway.Token
				}
			}
			if tokenFlag != "" {
				sep := "?"
				if strings.Contains(target, "?") {
					sep = "&"
				}
				target += sep + "token=" + tokenFlag
			}
			return runChat(target, sessionID, message)
		},
	}

	cmd.Flags().StringVar(&urlFlag, "url", "", "gateway WebSocket URL (default from config)")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "gateway auth token")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

func runChat(target, sessionID, oneShot string) error {
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer conn.Close()

	if sessionID != "" {
		if err := conn.WriteJSON(protocol.InboundFrame{Kind: protocol.KindResume, SessionID: sessionID}); err != nil {
			return err
		}
	}

	send := func(text string) error {
		return conn.WriteJSON(protocol.InboundFrame{Kind: protocol.KindSend, Text: text})
	}

	// readTurn prints events until the turn settles (done or error).
	readTurn := func() error {
		for {
			var ev protocol.StreamEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			switch ev.Type {
			case protocol.EventTextDelta:
				fmt.Print(ev.Delta)
			case protocol.EventToolStart:
				fmt.Fprintf(os.Stderr, "\n[tool] %s\n", ev.Name)
			case protocol.EventToolEnd:
				// tool output flows back through the model; nothing to print
			case protocol.EventCompacting:
				if ev.Phase == protocol.CompactingStart {
					fmt.Fprintln(os.Stderr, "[compacting history]")
				}
			case protocol.EventQueued:
				fmt.Fprintf(os.Stderr, "[queued at position %d]\n", ev.Count)
			case protocol.EventSessionResumed:
				fmt.Fprintf(os.Stderr, "[resumed session, %d messages]\n", ev.Count)
				for _, m := range ev.Messages {
					fmt.Printf("%s: %s\n", m.Role, m.Content)
				}
				return nil
			case protocol.EventDone:
				fmt.Println()
				return nil
			case protocol.EventError:
				return fmt.Errorf("gateway error: %s", ev.ErrorMessage)
			}
		}
	}

	if sessionID != "" {
		if err := readTurn(); err != nil {
			return err
		}
	}

	if oneShot != "" {
		if err := send(oneShot); err != nil {
			return err
		}
		return readTurn()
	}

	fmt.Fprintln(os.Stderr, "connected; type a message, /quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := conn.WriteJSON(protocol.InboundFrame{Kind: protocol.KindReset}); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "[session reset]")
			continue
		}
		if err := send(line); err != nil {
			return err
		}
		if err := readTurn(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
