package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/domain"
)

const (
	headerPaidOut     = "X-Scrum-Paid-Out"
	headerPaymentHash = "X-Scrum-Payment-Hash"
)

func listTasks(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		q, err := parseQuery(c, taskFilters)
		if err != nil {
			return writeError(c, logger, err)
		}
		page, err := tasks.List(c.Request().Context(), userID, c.QueryParam("board_id"), q)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, page)
	}
}

func getTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err)
		}
		task, err := tasks.Get(c.Request().Context(), userID, c.Param("task_id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newTaskRequestMetrics(c.Request().Context(), logger, Prefix+"/tasks")
		var failure error
		defer func() { metrics.Log(c.Response().Status, failure) }()

		authStart := time.Now()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if err != nil {
			failure = err
			metrics.SetErrorStage("auth")
			return unauthorized(c, err)
		}
		var data domain.CreateTask
		if err := decodeBody(c, &data); err != nil {
			failure = err
			metrics.SetErrorStage("decode")
			return writeError(c, logger, err)
		}
		start := time.Now()
		task, err := tasks.Create(ctx, userID, data)
		metrics.ObserveService(time.Since(start))
		if err != nil {
			failure = err
			_, stage := statusFor(err)
			metrics.SetErrorStage(stage)
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newTaskRequestMetrics(c.Request().Context(), logger, Prefix+"/tasks/:task_id")
		var failure error
		defer func() { metrics.Log(c.Response().Status, failure) }()

		authStart := time.Now()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if err != nil {
			failure = err
			metrics.SetErrorStage("auth")
			return unauthorized(c, err)
		}
		var upd domain.TaskUpdate
		if err := decodeBody(c, &upd); err != nil {
			failure = err
			metrics.SetErrorStage("decode")
			return writeError(c, logger, err)
		}
		start := time.Now()
		res, err := tasks.UpdateTask(ctx, userID, c.Param("task_id"), upd)
		metrics.ObserveService(time.Since(start))
		metrics.SetPayout(res.PayoutAttempted, res.PaidOut)
		if err != nil {
			failure = err
			_, stage := statusFor(err)
			metrics.SetErrorStage(stage)
			return writeError(c, logger, err)
		}
		return writeUpdateResult(c, res)
	}
}

func updateTaskPublic(tasks Tasks, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newTaskRequestMetrics(c.Request().Context(), logger, Prefix+"/tasks/public/:task_id")
		var failure error
		defer func() { metrics.Log(c.Response().Status, failure) }()

		var pub domain.PublicTaskUpdate
		if err := decodeBody(c, &pub); err != nil {
			failure = err
			metrics.SetErrorStage("decode")
			return writeError(c, logger, err)
		}
		start := time.Now()
		res, err := tasks.UpdateTaskPublic(ctx, c.Param("task_id"), pub)
		metrics.ObserveService(time.Since(start))
		metrics.SetPayout(res.PayoutAttempted, res.PaidOut)
		if err != nil {
			failure = err
			_, stage := statusFor(err)
			metrics.SetErrorStage(stage)
			return writeError(c, logger, err)
		}
		return writeUpdateResult(c, res)
	}
}

func deleteTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newTaskRequestMetrics(c.Request().Context(), logger, Prefix+"/tasks/:task_id")
		var failure error
		defer func() { metrics.Log(c.Response().Status, failure) }()

		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			failure = err
			metrics.SetErrorStage("auth")
			return unauthorized(c, err)
		}
		if err := tasks.Delete(ctx, userID, c.Param("task_id")); err != nil {
			failure = err
			_, stage := statusFor(err)
			metrics.SetErrorStage(stage)
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, deleteResponse{Success: true, Message: "Task deleted."})
	}
}

func writeUpdateResult(c echo.Context, res domain.UpdateResult) error {
	if res.PaidOut {
		c.Response().Header().Set(headerPaidOut, "true")
		c.Response().Header().Set(headerPaymentHash, res.PaymentHash)
	}
	return c.JSON(http.StatusOK, res.Task)
}
