package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const transactionIDHeader = "X-Transaction-ID"

// TransactionID ensures every invocation carries a stable transaction
// identifier. Clients that resubmit with the same identifier hit the dedupe
// layer instead of re-executing the invocation.
func TransactionID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		txID := c.Get(transactionIDHeader)
		if txID == "" {
			txID = uuid.NewString()
			c.Set(transactionIDHeader, txID)
		}

		c.Locals(transactionIDHeader, txID)

		return c.Next()
	}
}
