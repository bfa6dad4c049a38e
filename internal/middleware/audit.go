package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per invocation lifecycle.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		duration := time.Since(start)
		txID, _ := c.Locals(transactionIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		}
		if caller := c.Get("X-Caller"); caller != "" {
			attrs = append(attrs, slog.String("caller", caller))
		}
		if txID != "" {
			attrs = append(attrs, slog.String("transaction_id", txID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("invocation completed", attrs...)
			return err
		}

		logger.Info("invocation completed", attrs...)
		return nil
	}
}
