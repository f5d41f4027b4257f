// Package main provides a terminal client for the chat server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
)

// Client represents a WebSocket chat client.
type Client struct {
	conn     *websocket.Conn
	username string
	done     chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// Join waits for the welcome and history frames and prints the history to out.
func (c *Client) Join(out io.Writer) error {
	var welcome protocol.WelcomeMessage
	if err := c.readExpected(protocol.TypeWelcome, &welcome); err != nil {
		return err
	}
	c.username = welcome.Username

	var history protocol.HistoryMessage
	if err := c.readExpected(protocol.TypeHistory, &history); err != nil {
		return err
	}
	for _, entry := range history.Messages {
		printEntry(out, entry)
	}
	return nil
}

func (c *Client) readExpected(typ string, v interface{}) error {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s: %w", typ, err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal %s: %w", typ, err)
	}
	if base.Type != typ {
		return fmt.Errorf("expected %s, got: %s", typ, base.Type)
	}
	return json.Unmarshal(data, v)
}

// Send posts a chat message.
func (c *Client) Send(text string) error {
	return c.conn.WriteJSON(protocol.SendMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeSendMessage,
			Ts:   time.Now().UnixMilli(),
		},
		Message: text,
	})
}

// ReadMessages reads and prints messages from the server until the connection closes.
func (c *Client) ReadMessages(out io.Writer) {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			printEvent(out, data)
		}
	}
}

func printEvent(out io.Writer, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeReceiveMessage:
		var msg protocol.ReceiveMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			printEntry(out, msg.ChatEntry)
		}
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			fmt.Fprintf(out, "! %s: %s\n", msg.Code, msg.Message)
		}
	default:
		fmt.Fprintf(out, "? %s\n", data)
	}
}

func printEntry(out io.Writer, e protocol.ChatEntry) {
	fmt.Fprintf(out, "[%s] %s: %s\n", e.Timestamp, e.Username, e.Message)
}

func main() {
	addr := flag.String("addr", "ws://localhost:43816/ws", "WebSocket server address")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.Join(os.Stdout); err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	fmt.Printf("You are %s\n", client.username)
	fmt.Println("Type a message and press Enter to send. /quit to exit")

	go client.ReadMessages(os.Stdout)

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "/quit" {
				fmt.Println("Bye!")
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := client.Send(line); err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
