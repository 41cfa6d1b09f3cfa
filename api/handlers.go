package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/board"
	"taskflow/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

var errInvalidBody = errors.New("invalid body")

// Register wires up all API routes on the provided Echo instance. A nil auth
// leaves the API open.
func Register(e *echo.Echo, b *board.Board, settings domain.SettingsService, auth Authenticator, logger *log.Logger) {
	e.GET("/healthz", healthz)

	g := e.Group("/api", RequestMetrics(logger), DecodeRequestBody(maxBodySize))
	if auth != nil {
		g.Use(RequireUser(auth))
	}

	g.GET("/tasks", getTasks(b, settings, logger))
	g.POST("/tasks", postTask(b, logger))
	g.GET("/tasks/:id", getTask(b, logger))
	g.PATCH("/tasks/:id", patchTask(b, logger))
	g.POST("/tasks/:id/toggle", toggleTask(b, logger))
	g.DELETE("/tasks/:id", deleteTask(b, logger))

	g.GET("/categories", getCategories(b, logger))
	g.POST("/categories", postCategory(b, logger))
	g.GET("/categories/:id", getCategory(b, logger))
	g.PATCH("/categories/:id", patchCategory(b, logger))
	g.DELETE("/categories/:id", deleteCategory(b, logger))

	g.GET("/stats", getStats(b, logger))

	g.GET("/settings", getSettings(settings, logger))
	g.PATCH("/settings", patchSettings(settings, logger))
	g.DELETE("/settings", resetSettings(settings, logger))
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// getTasks refreshes the board and returns the tasks matching the optional
// category and q filters, ordered by the sort parameter or the saved setting.
func getTasks(b *board.Board, settings domain.SettingsService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := b.Load(ctx); err != nil {
			return writeError(c, logger, err)
		}
		tasks := b.Filter(c.QueryParam("category"), c.QueryParam("q"))
		board.Sort(tasks, sortOrder(ctx, c.QueryParam("sort"), settings, logger))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func sortOrder(ctx context.Context, requested string, settings domain.SettingsService, logger *log.Logger) string {
	if requested != "" || settings == nil {
		return requested
	}
	s, err := settings.Get(ctx, domain.SettingsID)
	if err != nil {
		logger.WithError(err).Warn("load sort order")
		return ""
	}
	return s.TaskSortOrder
}

func getTask(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := b.Task(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func postTask(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var fields domain.TaskFields
		if err := decodeBody(c, &fields); err != nil {
			return writeError(c, logger, err)
		}
		task, err := b.AddTask(c.Request().Context(), fields)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func patchTask(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var fields domain.TaskFields
		if err := decodeBody(c, &fields); err != nil {
			return writeError(c, logger, err)
		}
		task, err := b.EditTask(c.Request().Context(), c.Param("id"), fields)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func toggleTask(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := b.ToggleTask(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.RemoveTask(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func getCategories(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.Load(c.Request().Context()); err != nil {
			return writeError(c, logger, err)
		}
		categories := b.Categories()
		views := make([]categoryView, len(categories))
		for i, cat := range categories {
			views[i] = categoryView{Category: cat, TaskCount: b.CategoryCount(cat.ID)}
		}
		return c.JSON(http.StatusOK, categoriesResponse{Categories: views})
	}
}

func getCategory(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cat, err := b.Category(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, cat)
	}
}

func postCategory(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var fields domain.CategoryFields
		if err := decodeBody(c, &fields); err != nil {
			return writeError(c, logger, err)
		}
		cat, err := b.AddCategory(c.Request().Context(), fields)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, cat)
	}
}

func patchCategory(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var fields domain.CategoryFields
		if err := decodeBody(c, &fields); err != nil {
			return writeError(c, logger, err)
		}
		cat, err := b.EditCategory(c.Request().Context(), c.Param("id"), fields)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, cat)
	}
}

func deleteCategory(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.RemoveCategory(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func getStats(b *board.Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.Load(c.Request().Context()); err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, b.Stats())
	}
}

func getSettings(settings domain.SettingsService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := settings.Get(c.Request().Context(), domain.SettingsID)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, s)
	}
}

func patchSettings(settings domain.SettingsService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var fields domain.SettingsFields
		if err := decodeBody(c, &fields); err != nil {
			return writeError(c, logger, err)
		}
		if err := board.ValidateSettings(fields); err != nil {
			return writeError(c, logger, err)
		}
		s, err := settings.Update(c.Request().Context(), domain.SettingsID, fields)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, s)
	}
}

func resetSettings(settings domain.SettingsService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := settings.Reset(c.Request().Context(), domain.SettingsID); err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

// writeError maps façade and validation errors to status codes.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	var verr *board.ValidationError
	switch {
	case errors.Is(err, errInvalidBody):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrFetchFailed), errors.Is(err, domain.ErrOperationFailed):
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	logger.WithError(err).WithField("route", c.Path()).Error("unhandled error")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
