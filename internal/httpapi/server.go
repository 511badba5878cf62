// Package httpapi exposes the discussion core as a JSON API.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/interaction"
	"github.com/VitaminP8/commentree/internal/mention"
	"github.com/VitaminP8/commentree/internal/report"
	"github.com/VitaminP8/commentree/internal/thread"
	"github.com/VitaminP8/commentree/internal/user"
)

// Deps - корневая точка внедрения зависимостей для всех обработчиков
type Deps struct {
	Users         user.UserStorage
	Threads       *thread.Registry
	Loader        *thread.Loader
	Engine        *interaction.Engine
	Ledger        *report.Ledger
	Notifications *mention.StoreSink
	JWTSecret     string
}

type Server struct {
	echo *echo.Echo
	deps Deps
	port int
}

func NewServer(deps Deps, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	// токен проверяется на всех маршрутах, анонимный доступ пропускается дальше
	e.Use(echo.WrapMiddleware(auth.AuthMiddleware(deps.JWTSecret)))

	s := &Server{echo: e, deps: deps, port: port}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/auth/register", s.register)
	v1.POST("/auth/login", s.login)

	v1.POST("/threads", s.createThread)
	v1.GET("/threads/:thread/comments", s.getComments)
	v1.POST("/threads/:thread/comments", s.postComment)

	v1.GET("/comments/load-more", s.loadMore)
	v1.POST("/comments/like", s.toggleLike)
	v1.PATCH("/comments", s.editComment)
	v1.DELETE("/comments", s.deleteComment)
	v1.POST("/comments/report", s.reportComment)

	v1.GET("/reports", s.reviewQueue)
	v1.GET("/notifications", s.notifications)
}

// ServeHTTP позволяет использовать сервер как http.Handler (в тестах)
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	log.Info().Int("port", s.port).Msg("HTTP server listening")
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
