package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/admissions/storage/database"
)

const (
	statusOK   = "ok"
	statusDown = "down"
)

type HealthResponse struct {
	Server    string    `json:"server"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func registerHealthAPI(g *echo.Group, db *sqlx.DB) {
	g.GET("/health", func(ctx echo.Context) error {
		resp := HealthResponse{Server: statusOK, Database: statusOK, Timestamp: time.Now().UTC()}
		code := http.StatusOK

		c, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if db == nil || database.StatusCheck(c, db) != nil {
			resp.Database = statusDown
			code = http.StatusServiceUnavailable
		}
		return ctx.JSON(code, resp)
	})
}
