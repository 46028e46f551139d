package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/recall"
)

var (
	chatSession string
	chatMessage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the memory-augmented agent",
	Long: `Start an interactive chat session. Every turn recalls relevant past
interactions from the store, feeds them to the model as context, and logs
both sides of the exchange. With --message a single turn runs non-interactively.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "default", "session ID to chat under")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	provider, err := newProvider(rt.cfg)
	if err != nil {
		return err
	}

	sa, err := recall.New(recall.Config{
		Store:           rt.store,
		Provider:        provider,
		Logger:          rt.log.GetZerolog(),
		Model:           rt.cfg.Provider.Model,
		Temperature:     rt.cfg.Provider.Temperature,
		MaxTokens:       rt.cfg.Provider.MaxTokens,
		TopK:            rt.cfg.Recall.TopK,
		SummarizeEvery:  rt.cfg.Recall.SummarizeEvery,
		GenerateTimeout: time.Duration(rt.cfg.Recall.GenerateTimeoutS) * time.Second,
		CrossSession:    rt.cfg.Recall.CrossSession,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if chatMessage != "" {
		reply, err := sa.Chat(ctx, chatSession, chatMessage)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %q. Type a message, or /quit to exit.\n", chatSession)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		reply, err := sa.Chat(ctx, chatSession, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
	}

	return scanner.Err()
}
