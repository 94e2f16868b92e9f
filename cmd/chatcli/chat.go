package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curasure-chat/client"
	"curasure-chat/config"
	"curasure-chat/models"
	"curasure-chat/transport"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(directCmd, groupCmd)
}

var directCmd = &cobra.Command{
	Use:   "direct [participant-id]",
	Short: "Chat one-to-one with another participant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), cfg, func(s *client.Session) (*client.View, error) {
			return s.OpenDirect(args[0])
		})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group [group-id]",
	Short: "Join the doctors' group chat",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		groupID := cfg.Client.GroupID
		if len(args) == 1 {
			groupID = args[0]
		}
		return runChat(cmd.Context(), cfg, func(s *client.Session) (*client.View, error) {
			return s.OpenGroup(groupID)
		})
	},
}

func runChat(ctx context.Context, cfg *config.Config, open func(*client.Session) (*client.View, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := transport.NewConn(cfg.Client.ServerURL, transport.Options{
		ReconnectMin: cfg.Client.ReconnectMin.Duration(),
		ReconnectMax: cfg.Client.ReconnectMax.Duration(),
	})
	session := client.NewSession(conn, cfg.Client.ParticipantID, client.OptionsFromConfig(cfg.Client))
	defer session.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := session.Open(dialCtx); err != nil {
		return err
	}

	view, err := open(session)
	if err != nil {
		return err
	}
	select {
	case <-view.Ready():
	case <-ctx.Done():
		return nil
	}

	p := &printer{out: os.Stdout, local: cfg.Client.ParticipantID, view: view}
	fmt.Fprintf(p.out, "-- %s (%s) --\n", view.Participant().DisplayName, view.Key())
	p.render()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	pump(ctx, view.Changes(), lines, view.Send, p.render)
	return nil
}

// pump 在 ctx 结束或 stdin 关闭前转发输入行并重绘。
// 按行读取看不到按键，所以不发送 typing 信号：回车时消息已经发出。
func pump(ctx context.Context, changes <-chan struct{}, lines <-chan string, send func(string) bool, render func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			render()
		case line, ok := <-lines:
			if !ok {
				return
			}
			send(line)
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// printer 只打印新追加的消息，列表只追加不重排
type printer struct {
	out     io.Writer
	local   string
	view    *client.View
	printed int
	typing  bool
}

func (p *printer) render() {
	msgs := p.view.Messages()
	for _, m := range msgs[min(p.printed, len(msgs)):] {
		p.line(m)
	}
	p.printed = len(msgs)

	if typing := p.view.Typing(); typing != p.typing {
		p.typing = typing
		if typing {
			fmt.Fprintln(p.out, "  ...typing")
		}
	}
}

func (p *printer) line(m models.Message) {
	who := m.SenderID
	if who == p.local {
		who = "me"
	}
	fmt.Fprintf(p.out, "[%s] %s: %s\n", m.CreatedAt().Format("15:04:05"), who, m.Body)
}
