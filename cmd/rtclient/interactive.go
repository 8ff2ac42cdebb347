package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/qiminjie89/rtsession/internal/core"
	"github.com/qiminjie89/rtsession/internal/gameroom"
	"github.com/qiminjie89/rtsession/internal/protocol"
)

// runInteractive 读取标准输入的命令，直到 quit 或输入结束
func runInteractive(c *core.Core, in io.Reader) {
	fmt.Println("Type 'help' for commands.")

	scanner := bufio.NewScanner(in)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if cmd == "quit" || cmd == "exit" {
			fmt.Println("Bye!")
			return
		}
		if err := execute(c, cmd, rest); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Print("> ")
	}
}

func execute(c *core.Core, cmd, rest string) error {
	switch cmd {
	case "help":
		printHelp()

	case "login":
		// login <token>
		if rest == "" {
			return errors.New("usage: login <token>")
		}
		return c.Login(rest)

	case "logout":
		return c.Logout(context.Background())

	case "room":
		// room <id> [status] [creator_id]
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			return errors.New("usage: room <id> [status] [creator_id]")
		}
		room := gameroom.Room{ID: protocol.ID(parts[0]), Status: gameroom.StatusPending}
		if len(parts) > 1 {
			room.Status = gameroom.Status(parts[1])
		}
		if len(parts) > 2 {
			room.CreatorID = protocol.ID(parts[2])
		}
		_, err := c.OpenRoom(room)
		return err

	case "join":
		gs, err := game(c)
		if err != nil {
			return err
		}
		res, err := gs.JoinRoom()
		if err != nil {
			return err
		}
		if res == gameroom.JoinPending {
			fmt.Println("join pending, will be sent when the game channel opens")
		}

	case "move":
		// move <json>
		gs, err := game(c)
		if err != nil {
			return err
		}
		var move any
		if err := json.Unmarshal([]byte(rest), &move); err != nil {
			return fmt.Errorf("invalid move json: %w", err)
		}
		return gs.SendAction(protocol.Outbound{Type: protocol.TypeMakeMove, Payload: move})

	case "chat":
		gs, err := game(c)
		if err != nil {
			return err
		}
		return gs.SendAction(protocol.Chat("", rest))

	case "reconnect":
		c.Realtime().Reconnect(true)

	case "presence":
		fmt.Printf("online friends (%d): %s\n", c.Presence().Len(), strings.Join(c.Presence().Online(), ", "))

	case "notifications":
		for _, item := range c.Notifications().Items() {
			mark := " "
			if !item.Read {
				mark = "*"
			}
			fmt.Printf("%s %s %s  %s: %s\n", mark, item.ID, item.CreatedAt.Format("15:04:05"), item.Title, item.Description)
		}

	case "read":
		// read <id|all>
		switch rest {
		case "":
			return errors.New("usage: read <id|all>")
		case "all":
			c.Notifications().MarkAllRead()
		default:
			if !c.Notifications().MarkRead(rest) {
				return fmt.Errorf("notification %s not found", rest)
			}
		}

	case "state":
		snap := c.Snapshot()
		fmt.Printf("logged_in=%t user=%s(%s) realtime=%s online=%d unread=%d\n",
			snap.LoggedIn, snap.UserID, snap.Username, snap.Realtime, snap.OnlineFriends, snap.Unread)
		if snap.RoomID != "" {
			fmt.Printf("room=%s game=%s intent=%s\n", snap.RoomID, snap.Game, snap.JoinIntent)
		}

	default:
		return fmt.Errorf("unknown command: %s, type 'help' for usage", cmd)
	}
	return nil
}

func game(c *core.Core) (*gameroom.Session, error) {
	gs := c.Game()
	if gs == nil {
		return nil, gameroom.ErrNoRoom
	}
	return gs, nil
}

func printHelp() {
	fmt.Println(`
Commands:
  help                          - Show this help
  login <token>                 - Log in with a long-lived token
  logout                        - Log out and reset local state
  room <id> [status] [creator]  - Open or switch the game room
  join                          - Join the current room
  move <json>                   - Send a move, e.g. move {"x":1,"y":2}
  chat <text>                   - Send a room chat message
  reconnect                     - Planned reconnect of the realtime channel
  presence                      - List online friends
  notifications                 - List notifications (* = unread)
  read <id|all>                 - Mark notifications read
  state                         - Show connection state
  quit                          - Exit`)
}
