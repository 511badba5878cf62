package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/interaction"
	"github.com/VitaminP8/commentree/internal/report"
	"github.com/VitaminP8/commentree/internal/thread"
	"github.com/VitaminP8/commentree/internal/threadpath"
	"github.com/VitaminP8/commentree/internal/user"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createThreadRequest struct {
	ID string `json:"id"`
}

type postCommentRequest struct {
	Text       string `json:"text"`
	ParentPath string `json:"parentPath"`
}

type editCommentRequest struct {
	Text string `json:"text"`
}

type reportRequest struct {
	Reason  report.Reason `json:"reason"`
	Details string        `json:"details"`
}

func (s *Server) register(c echo.Context) error {
	var req user.Registration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Password == "" || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	u, err := s.deps.Users.RegisterUser(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	token, err := s.deps.Users.LoginUser(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		// не раскрываем, что именно не так - имя или пароль
		if errors.Is(err, user.ErrNotFound) {
			err = user.ErrInvalidCredentials
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (s *Server) createThread(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}

	var req createThreadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	t, err := s.deps.Threads.Create(c.Request().Context(), req.ID, viewer.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) getComments(c echo.Context) error {
	showHidden, err := queryBool(c, "showHidden")
	if err != nil {
		return err
	}

	tree, err := s.deps.Loader.Load(c.Request().Context(), c.Param("thread"), thread.Options{
		Viewer:     viewerOf(c),
		ShowHidden: showHidden,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tree)
}

func (s *Server) postComment(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}

	var req postCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	var parent *threadpath.Address
	if req.ParentPath != "" {
		addr, err := threadpath.Decode(req.ParentPath)
		if err != nil {
			return httpError(err)
		}
		parent = &addr
	}

	res, err := s.deps.Engine.Post(c.Request().Context(), nil, viewer, c.Param("thread"), parent, req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) loadMore(c echo.Context) error {
	addr, err := queryPath(c)
	if err != nil {
		return err
	}
	showHidden, err := queryBool(c, "showHidden")
	if err != nil {
		return err
	}

	tree, err := s.deps.Loader.LoadSubtree(c.Request().Context(), addr, thread.Options{
		Viewer:     viewerOf(c),
		ShowHidden: showHidden,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tree)
}

func (s *Server) toggleLike(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}
	addr, err := queryPath(c)
	if err != nil {
		return err
	}

	liked, err := s.deps.Engine.ToggleLike(c.Request().Context(), nil, addr, viewer.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"liked": liked})
}

func (s *Server) editComment(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}
	addr, err := queryPath(c)
	if err != nil {
		return err
	}

	var req editCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := s.deps.Engine.Edit(c.Request().Context(), nil, viewer, addr, req.Text); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteComment(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}
	addr, err := queryPath(c)
	if err != nil {
		return err
	}

	if err := s.deps.Engine.Delete(c.Request().Context(), nil, viewer, addr); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reportComment(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}
	addr, err := queryPath(c)
	if err != nil {
		return err
	}

	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	receipt, err := s.deps.Engine.Report(c.Request().Context(), nil, viewer, addr, req.Reason, req.Details)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":     receipt.ID,
		"queued": receipt.QueueErr == nil,
	})
}

func (s *Server) reviewQueue(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}
	if !viewer.IsModerator {
		return echo.NewHTTPError(http.StatusForbidden, "Moderator access required")
	}

	records, err := s.deps.Ledger.Queue(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) notifications(c echo.Context) error {
	viewer, err := requireViewer(c)
	if err != nil {
		return err
	}

	items, err := s.deps.Notifications.List(c.Request().Context(), viewer.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func viewerOf(c echo.Context) auth.Viewer {
	viewer, _ := auth.GetViewerFromContext(c.Request().Context())
	return viewer
}

func requireViewer(c echo.Context) (auth.Viewer, error) {
	viewer, err := auth.GetViewerFromContext(c.Request().Context())
	if err != nil {
		return auth.Viewer{}, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return viewer, nil
}

func queryPath(c echo.Context) (threadpath.Address, error) {
	raw := c.QueryParam("path")
	if raw == "" {
		return threadpath.Address{}, echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	addr, err := threadpath.Decode(raw)
	if err != nil {
		return threadpath.Address{}, httpError(err)
	}
	return addr, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, name+" must be a boolean")
	}
	return v, nil
}

// httpError переводит доменные ошибки в HTTP-статусы
func httpError(err error) error {
	switch {
	case errors.Is(err, interaction.ErrUnauthorized),
		errors.Is(err, report.ErrUnauthorized),
		errors.Is(err, user.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())

	case errors.Is(err, interaction.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())

	case errors.Is(err, interaction.ErrNotFound),
		errors.Is(err, thread.ErrNotFound),
		errors.Is(err, report.ErrTargetNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, interaction.ErrInvalidText),
		errors.Is(err, interaction.ErrCommentsDisabled),
		errors.Is(err, report.ErrInvalidReason),
		errors.Is(err, report.ErrDetailsTooLong),
		errors.Is(err, threadpath.ErrMalformed),
		errors.Is(err, user.ErrInvalidUsername):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, user.ErrExists),
		errors.Is(err, thread.ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	log.Error().Err(err).Msg("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}
