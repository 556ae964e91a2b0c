package echoutil

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// SetLevel configures echo's built-in logger, exactly as the teacher's
// cmd/knitd does, from a CLI-supplied string.
func SetLevel(e *echo.Echo, level string) {
	switch level {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.INFO)
	}
}

// LogHandlerFunc is a middleware logging each request at the configured
// level, in the teacher's style of a single line per request.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		req := c.Request()
		res := c.Response()
		if err != nil {
			c.Echo().Logger.Errorf("%s %s -> %d: %v", req.Method, req.URL.Path, res.Status, err)
		} else {
			c.Echo().Logger.Infof("%s %s -> %d", req.Method, req.URL.Path, res.Status)
		}
		return err
	}
}
