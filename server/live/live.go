// Package live streams raw poll events over a websocket, one poll per
// connection.
package live

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const writeWait = 10 * time.Second

type errorFrame struct {
	Error string `json:"error"`
}

func Live(app fiber.Router, svc *polls.Service, sub polls.Subscriber) {
	live := app.Group("/live")

	live.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(426)
	})

	live.Get("/:id", websocket.New(func(c *websocket.Conn) {
		stream(c, svc, sub, c.Params("id"))
	}))
}

func send(c *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("json, err=%v", err)
		return nil
	}
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

func stream(c *websocket.Conn, svc *polls.Service, sub polls.Subscriber, id string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view, err := svc.Get(ctx, id, "")
	if err != nil {
		_ = send(c, errorFrame{polls.KindOf(err).String()})
		return
	}

	events, err := sub.Subscribe(ctx, view.Poll.ID)
	if err != nil {
		log.Errorf("hub, err=%v", err)
		_ = send(c, errorFrame{polls.KindTransient.String()})
		return
	}

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := send(c, polls.Event{
		Type:       polls.EventUpdate,
		PollID:     view.Poll.ID,
		Options:    view.Poll.Options,
		TotalVotes: view.Poll.TotalVotes,
		Poll:       view.Poll,
		Timestamp:  time.Now(),
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(c, ev); err != nil {
				return
			}
			if ev.Type == polls.EventDeleted {
				return
			}
		}
	}
}
