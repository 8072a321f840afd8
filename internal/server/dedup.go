package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"Membership-Telegram-bot/internal/cache"
)

// TelegramUpdateDedup отбрасывает повторные апдейты по update_id.
// Ошибки хранилища не блокируют обработку.
func TelegramUpdateDedup(deduper cache.UpdateDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}
			req := c.Request()
			if req.Body == nil {
				return next(c)
			}
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))
			if len(raw) == 0 {
				return next(c)
			}

			var payload struct {
				UpdateID int64 `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil || payload.UpdateID == 0 {
				return next(c)
			}
			dup, err := deduper.Seen(req.Context(), payload.UpdateID)
			if err != nil || !dup {
				return next(c)
			}
			// Telegram нужен любой 2xx, чтобы прекратить повторы
			return c.String(http.StatusOK, "ok")
		}
	}
}
