package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/chatsvc"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/widget"
)

const cliStopWaitTimeout = 500 * time.Millisecond

// CLIChannel is the interactive terminal surface. It drives one
// conversation: replies stream to stdout chunk by chunk, and slash
// commands trigger captures and cancels.
type CLIChannel struct {
	svc    *chatsvc.Service
	bus    *bus.Bus
	prompt string

	convID    string
	subID     string
	done      chan struct{}
	replyDone chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewCLIChannel creates the terminal channel.
func NewCLIChannel(svc *chatsvc.Service, eventBus *bus.Bus) *CLIChannel {
	return &CLIChannel{
		svc:       svc,
		bus:       eventBus,
		prompt:    "tradeberg> ",
		done:      make(chan struct{}),
		replyDone: make(chan struct{}, 1),
	}
}

func (c *CLIChannel) Name() string {
	return "cli"
}

func (c *CLIChannel) Start(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Info("cli channel reading from a pipe")
	}

	conv, err := c.svc.CreateConversation(ctx, "")
	if err != nil {
		return fmt.Errorf("channel: cli conversation: %w", err)
	}
	c.convID = conv.ID
	c.subID = c.bus.Subscribe(bus.EventAny, c.onEvent)

	fmt.Println("TradeBerg terminal. Type a question, /capture to snapshot the chart, /help for more.")
	c.wg.Add(1)
	go c.readInput(ctx)
	return nil
}

func (c *CLIChannel) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.subID != "" {
			c.bus.Unsubscribe(c.subID)
		}

		waitDone := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-time.After(cliStopWaitTimeout):
			logger.Warn("cli channel stop timed out waiting for input loop")
		}
		logger.Info("cli channel stopped")
	})
	return nil
}

// onEvent turns this conversation's bus traffic into terminal output.
func (c *CLIChannel) onEvent(ctx context.Context, event *bus.Event) {
	if event.ConversationID != c.convID {
		return
	}
	switch event.Type {
	case bus.EventReplyChunk:
		var data bus.ReplyEventData
		if err := event.ParseData(&data); err == nil {
			fmt.Print(data.Delta)
		}
	case bus.EventReplyDone:
		fmt.Println()
		c.signalReplyDone()
	case bus.EventReplyCancelled:
		fmt.Println("\n(cancelled)")
		c.signalReplyDone()
	case bus.EventReplyFailed:
		var data bus.ReplyEventData
		_ = event.ParseData(&data)
		fmt.Printf("\nreply failed: %s\n", data.Error)
		c.signalReplyDone()
	case bus.EventCaptureSucceeded:
		var data bus.CaptureEventData
		if err := event.ParseData(&data); err == nil {
			fmt.Printf("snapshot of %s attached, it rides along with your next message\n", data.Symbol)
		}
	}
}

func (c *CLIChannel) signalReplyDone() {
	select {
	case c.replyDone <- struct{}{}:
	default:
	}
}

func (c *CLIChannel) readInput(ctx context.Context) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			fmt.Print(c.prompt)
			if !scanner.Scan() {
				return
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" || text == "/exit" || text == "/quit" {
				fmt.Println("Goodbye!")
				return
			}
			if strings.HasPrefix(text, "/") {
				c.runCommand(ctx, text)
				continue
			}
			c.sendAndWait(ctx, text)
		}
	}
}

// sendAndWait submits the message and blocks until the streamed
// reply settles, so the prompt does not interleave with the output.
func (c *CLIChannel) sendAndWait(ctx context.Context, text string) {
	// Clear any stale completion signal.
	select {
	case <-c.replyDone:
	default:
	}

	if _, err := c.svc.SendMessage(ctx, c.convID, text); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	select {
	case <-c.replyDone:
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *CLIChannel) runCommand(ctx context.Context, text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/help":
		fmt.Println("/capture [symbol] [interval]  snapshot the chart and stage it")
		fmt.Println("/cancel                       stop the streaming reply")
		fmt.Println("/attachments                  list staged attachments")
		fmt.Println("/exit                         leave")

	case "/capture":
		opts := widget.Options{}
		if len(fields) > 1 {
			opts.Symbol = fields[1]
		}
		if len(fields) > 2 {
			opts.Interval = fields[2]
		}
		att, err := c.svc.Capture(ctx, c.convID, opts)
		if err != nil {
			if errors.Is(err, capture.ErrUnsupported) {
				fmt.Println("capture unavailable: no usable browser on this machine")
			} else {
				fmt.Printf("capture failed: %v\n", err)
			}
			return
		}
		fmt.Printf("captured %s\n", att.Name)

	case "/cancel":
		if err := c.svc.CancelReply(ctx, c.convID); err != nil {
			fmt.Printf("nothing to cancel: %v\n", err)
		}

	case "/attachments":
		atts, err := c.svc.PendingAttachments(c.convID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if len(atts) == 0 {
			fmt.Println("nothing staged")
			return
		}
		for _, att := range atts {
			fmt.Printf("- %s (%s, %d bytes)\n", att.Name, att.Kind, att.Size)
		}

	default:
		fmt.Printf("unknown command %s, try /help\n", fields[0])
	}
}
