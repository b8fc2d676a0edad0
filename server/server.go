package server

import (
	"net"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"

	"github.com/troydota/api.vote.komodohype.dev/configure"
	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/server/gql"
	"github.com/troydota/api.vote.komodohype.dev/server/live"
	"github.com/troydota/api.vote.komodohype.dev/utils"

	log "github.com/sirupsen/logrus"
)

type Server struct {
	app *fiber.App
	ln  net.Listener
}

type customLogger struct{}

func (*customLogger) Write(data []byte) (n int, err error) {
	log.Debugln(utils.B2S(data))
	return len(data), nil
}

func NewServer(cfg configure.ServerCfg, svc *polls.Service, sub polls.Subscriber) (*Server, error) {
	ln, err := net.Listen(cfg.ListenerNetwork, cfg.ListenerAddress)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	server := &Server{
		ln:  ln,
		app: newApp(cfg, svc, sub),
	}

	go func() {
		if err := server.app.Listener(server.ln); err != nil {
			log.Errorf("failed to start http server, err=%v", err)
		}
	}()

	return server, nil
}

func newApp(cfg configure.ServerCfg, svc *polls.Service, sub polls.Subscriber) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
	}))
	app.Use(logger.New(logger.Config{
		Output: &customLogger{},
	}))
	app.Use(clientInfo)

	gql.GQL(app, svc, sub)
	live.Live(app, svc, sub)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(&fiber.Map{
			"status":  404,
			"message": "We don't know what you're looking for.",
		})
	})

	return app
}

// clientInfo stores the resolved client ip and user agent in the request
// locals for the handlers below.
func clientInfo(c *fiber.Ctx) error {
	c.Locals("ip", utils.ClientIP(
		c.Get("X-Real-IP"),
		c.Get(fiber.HeaderXForwardedFor),
		c.Context().RemoteAddr().String(),
	))
	c.Locals("ua", c.Get(fiber.HeaderUserAgent))
	return c.Next()
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(&fiber.Map{
			"status":  fe.Code,
			"message": fe.Message,
		})
	}

	log.Errorf("internal err=%v", spew.Sdump(err))

	return c.SendStatus(500)
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}
