package middleware

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDKey = "requestID"

// RequestID tags every request with an id, echoes it in the X-Request-ID
// response header and logs the request line once it completes. Incoming
// ids are kept so proxies can correlate.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Locals(requestIDKey, id)
		c.Set("X-Request-ID", id)

		start := time.Now()
		err := c.Next()

		log.Printf("[HTTP] %s %s -> %d (%s) request_id=%s",
			c.Method(), c.Path(), responseStatus(c, err), time.Since(start), id)
		return err
	}
}

// GetRequestID returns the id assigned to the request.
func GetRequestID(c *fiber.Ctx) string {
	id, ok := c.Locals(requestIDKey).(string)
	if !ok {
		return "unknown"
	}
	return id
}

// responseStatus resolves the status a request will produce: errors have
// not reached the app error handler yet when middleware observes them.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
