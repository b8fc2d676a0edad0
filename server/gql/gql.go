package gql

import (
	"context"
	"sync"
	"time"

	"github.com/gobuffalo/packr/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/graph-gophers/graphql-go"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/server/gql/resolvers"
	"github.com/troydota/api.vote.komodohype.dev/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const heartbeatInterval = 60 * time.Second

type GQLRequest struct {
	Query          string                 `json:"query"`
	Variables      map[string]interface{} `json:"variables"`
	OperationName  string                 `json:"operation_name"`
	RequestID      string                 `json:"request_id"`
	SubscriptionID string                 `json:"subscription_id"`
}

type WSResponse struct {
	Payload        interface{} `json:"payload,omitempty"`
	Error          string      `json:"error,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
	SubscriptionID string      `json:"sub_id,omitempty"`
}

func Schema(svc *polls.Service, sub polls.Subscriber) *graphql.Schema {
	box := packr.New("gql", "./schema")

	s, err := box.FindString("schema.gql")
	if err != nil {
		panic(err)
	}

	return graphql.MustParseSchema(s, resolvers.New(svc, sub), graphql.UseFieldResolvers())
}

// requestCtx carries the caller's ip and user agent, set by the server
// middleware, into resolvers.
func requestCtx(parent context.Context, locals func(key string) interface{}) context.Context {
	ctx := parent
	if ip, ok := locals("ip").(string); ok {
		ctx = context.WithValue(ctx, utils.Key("ip"), ip)
	}
	if ua, ok := locals("ua").(string); ok {
		ctx = context.WithValue(ctx, utils.Key("ua"), ua)
	}
	return ctx
}

func GQL(app fiber.Router, svc *polls.Service, sub polls.Subscriber) {
	gql := app.Group("/gql")

	schema := Schema(svc, sub)

	gql.Use(func(c *fiber.Ctx) error {
		if c.Method() != "GET" {
			return c.Next()
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(426)
	})

	gql.Post("/", func(c *fiber.Ctx) error {
		req := &GQLRequest{}
		if err := json.Unmarshal(c.Body(), req); err != nil {
			log.Errorf("gql req, err=%v", err)
			return c.Status(400).JSON(fiber.Map{
				"status":  400,
				"message": "Invalid GraphQL Request.",
			})
		}

		ctx := requestCtx(c.UserContext(), func(key string) interface{} {
			return c.Locals(key)
		})
		result := schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

		status := 200
		if len(result.Errors) > 0 {
			status = 400
		}

		return c.Status(status).JSON(result)
	})

	gql.Get("/", websocket.New(func(c *websocket.Conn) {
		newSession(c, schema).serve()
	}))
}

// session is one websocket connection multiplexing subscriptions.
type session struct {
	conn   *websocket.Conn
	schema *graphql.Schema
	ctx    context.Context

	mtx    sync.Mutex
	events map[string]context.CancelFunc
}

func newSession(c *websocket.Conn, schema *graphql.Schema) *session {
	return &session{
		conn:   c,
		schema: schema,
		ctx: requestCtx(context.Background(), func(key string) interface{} {
			return c.Locals(key)
		}),
		events: map[string]context.CancelFunc{},
	}
}

func (s *session) write(resp WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("json, err=%v", err)
		return nil
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) serve() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mtx.Lock()
				err := s.conn.WriteMessage(websocket.TextMessage, utils.S2B("HEARTBEAT"))
				s.mtx.Unlock()
				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}

		req := &GQLRequest{}
		if err = json.Unmarshal(msg, req); err != nil {
			if err = s.write(WSResponse{Error: "invalid request"}); err != nil {
				break
			}
			continue
		}

		if req.SubscriptionID != "" && req.OperationName == "unsubscribe" {
			s.mtx.Lock()
			if stop, ok := s.events[req.SubscriptionID]; ok {
				stop()
			}
			s.mtx.Unlock()
			continue
		}

		go s.run(ctx, req)
	}
}

func (s *session) run(parent context.Context, req *GQLRequest) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	result, err := s.schema.Subscribe(ctx, req.Query, req.OperationName, req.Variables)
	if err != nil {
		log.Errorf("gql, err=%v", err)
		_ = s.write(WSResponse{Error: "invalid request", RequestID: req.RequestID})
		return
	}

	id, err := utils.GenerateRandomString(20)
	if err != nil {
		log.Errorf("random, err=%v", err)
		_ = s.write(WSResponse{Error: "internal server err", RequestID: req.RequestID})
		return
	}

	s.mtx.Lock()
	s.events[id] = cancel
	s.mtx.Unlock()
	defer func() {
		s.mtx.Lock()
		delete(s.events, id)
		s.mtx.Unlock()
	}()

	for val := range result {
		if err = s.write(WSResponse{
			Payload:        val,
			RequestID:      req.RequestID,
			SubscriptionID: id,
		}); err != nil {
			return
		}
	}
}
