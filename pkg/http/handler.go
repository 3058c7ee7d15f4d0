package http

import "github.com/labstack/echo/v4"

// Handler defines HTTP route registration interface. Routes on api are rate
// limited; routes registered directly on e are not.
type Handler interface {
	RegisterRoutes(e *echo.Echo, api *echo.Group)
}
