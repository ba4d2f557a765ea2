package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/clinicore/reminder-service/internal/api/handlers/appointment"
	"github.com/clinicore/reminder-service/internal/middlewares"
)

func New(handler *appointment.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api")
	{
		api.POST("/appointments", handler.Book)
		api.DELETE("/appointments/:id", handler.Cancel)
		api.GET("/reminders/:id", handler.GetStatus)
	}

	return e
}
