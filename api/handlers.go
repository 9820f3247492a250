package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/domain"
)

// Prefix is the mount point of every extension route.
const Prefix = "/scrum/api/v1"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, tasks Tasks, auth Authenticator, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/healthz", healthz())

	g := e.Group(Prefix)
	g.POST("/boards", createBoard(boards, auth, logger))
	g.GET("/boards/paginated", listBoards(boards, auth, logger))
	g.GET("/boards/public/:board_id", publicBoard(boards, logger))
	g.GET("/boards/:board_id", getBoard(boards, auth, logger))
	g.PUT("/boards/:board_id", updateBoard(boards, auth, logger))
	g.DELETE("/boards/:board_id", deleteBoard(boards, auth, logger))

	g.POST("/tasks", createTask(tasks, auth, logger))
	g.GET("/tasks/paginated", listTasks(tasks, auth, logger))
	g.PUT("/tasks/public/:task_id", updateTaskPublic(tasks, logger))
	g.GET("/tasks/:task_id", getTask(tasks, auth, logger))
	g.PUT("/tasks/:task_id", updateTask(tasks, auth, logger))
	g.DELETE("/tasks/:task_id", deleteTask(tasks, auth, logger))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func createBoard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		var data domain.CreateBoard
		if err := decodeBody(c, &data); err != nil {
			return writeError(c, logger, err)
		}
		board, err := boards.Create(c.Request().Context(), userID, data)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, board)
	}
}

func listBoards(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		q, err := parseQuery(c, boardFilters)
		if err != nil {
			return writeError(c, logger, err)
		}
		page, err := boards.List(c.Request().Context(), userID, q)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, page)
	}
}

func getBoard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		board, err := boards.Get(c.Request().Context(), userID, c.Param("board_id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, board)
	}
}

func updateBoard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		var upd domain.BoardUpdate
		if err := decodeBody(c, &upd); err != nil {
			return writeError(c, logger, err)
		}
		board, err := boards.Update(c.Request().Context(), userID, c.Param("board_id"), upd)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, board)
	}
}

func deleteBoard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		clearTasks, err := parseBool(c.QueryParam("clear_tasks"))
		if err != nil {
			return writeError(c, logger, err)
		}
		if err := boards.Delete(c.Request().Context(), userID, c.Param("board_id"), clearTasks); err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, deleteResponse{Success: true, Message: "Board deleted."})
	}
}

func publicBoard(boards Boards, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := boards.PublicView(c.Request().Context(), c.Param("board_id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}
