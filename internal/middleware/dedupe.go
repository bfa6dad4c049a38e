package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	dedupePrefix     = "dedupe:v1:"
	inProgressMarker = "__in_progress__"
)

type storedOutcome struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Dedupe replays the stored outcome for a transaction identifier that has
// already executed, mirroring the host runtime's transaction-hash
// deduplication. Reads pass through untouched.
func Dedupe(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		txID, _ := c.Locals(transactionIDHeader).(string)
		if txID == "" {
			txID = c.Get(transactionIDHeader)
		}
		if txID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing X-Transaction-ID header")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		cacheKey := dedupePrefix + txID

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			if cached == inProgressMarker {
				return fiber.NewError(fiber.StatusConflict, "transaction currently executing")
			}
			var stored storedOutcome
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("decode stored outcome", slog.String("transaction_id", txID), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate transaction")
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(stored.Status).SendString(stored.Body)
		}
		if err != redis.Nil {
			logger.Error("dedupe lookup failed", slog.String("transaction_id", txID), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "dedupe store failure")
		}

		if err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Err(); err != nil {
			logger.Error("dedupe reservation failed", slog.String("transaction_id", txID), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "dedupe reservation failure")
		}

		// Release the reservation unless an outcome was stored. The defer
		// also runs when the handler panics, so an aborted invocation never
		// leaves the marker blocking resubmission until the TTL.
		stored := false
		defer func() {
			if stored {
				return
			}
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
		}()

		if err := c.Next(); err != nil {
			return err
		}

		outcome := storedOutcome{
			Status: c.Response().StatusCode(),
			Body:   string(c.Response().Body()),
		}
		encoded, err := json.Marshal(outcome)
		if err != nil {
			logger.Warn("encode outcome for dedupe", slog.String("transaction_id", txID), slog.Any("error", err))
			return nil
		}
		storeCtx, cancelStore := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelStore()
		if err := cache.Set(storeCtx, cacheKey, encoded, ttl).Err(); err != nil {
			logger.Warn("persist outcome for dedupe", slog.String("transaction_id", txID), slog.Any("error", err))
			return nil
		}
		stored = true
		return nil
	}
}
