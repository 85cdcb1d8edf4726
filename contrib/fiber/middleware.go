// Package fiber adapts the client's track contract to gofiber/fiber, so a
// fiber application can ship per-request telemetry with a single
// app.Use(beaconfiber.Middleware(client)) call.
package fiber

import (
	"sort"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	beacon "github.com/beaconhq/beacon-go"
)

// Middleware returns fiber middleware that calls client.Track once per
// request with method/path/status_code/response_time_ms/request_size/
// response_size/consumer_id. An application panic propagating back
// through the stack still produces a status_code=500, response_size=0
// event before it is re-raised.
func Middleware(client *beacon.Client) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		start := time.Now()
		requestSize := len(c.Body())
		headers := lowercaseHeaders(c.GetReqHeaders())
		consumerID, hasConsumer := client.Identify(headers)
		p := requestPath(c, client.CollectQueryString())
		method := c.Method()

		defer func() {
			if r := recover(); r != nil {
				trackEvent(client, method, p, start, requestSize, 500, 0, consumerID, hasConsumer)
				panic(r)
			}
		}()

		nextErr := c.Next()

		status := c.Response().StatusCode()
		responseSize := len(c.Response().Body())
		trackEvent(client, method, p, start, requestSize, status, responseSize, consumerID, hasConsumer)

		return nextErr
	}
}

func trackEvent(client *beacon.Client, method, path string, start time.Time, requestSize, statusCode, responseSize int, consumerID string, hasConsumer bool) {
	event := map[string]any{
		"method":           method,
		"path":             path,
		"status_code":      statusCode,
		"response_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
		"request_size":     requestSize,
		"response_size":    responseSize,
	}
	if hasConsumer {
		event["consumer_id"] = consumerID
	}
	client.Track(event)
}

func requestPath(c *fiber.Ctx, collectQueryString bool) string {
	p := c.Path()
	if !collectQueryString {
		return p
	}

	var pairs []string
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		pairs = append(pairs, string(k)+"="+string(v))
	})
	if len(pairs) == 0 {
		return p
	}
	sort.Strings(pairs)
	return p + "?" + strings.Join(pairs, "&")
}

func lowercaseHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = v[0]
	}
	return out
}
