package controller

import (
	"cv-search-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Check(ctx *fiber.Ctx) error
}

type healthController struct {
	vectorBackend string
	memoryBackend string
}

func NewHealthController(vectorBackend, memoryBackend string) IHealthController {
	return &healthController{
		vectorBackend: vectorBackend,
		memoryBackend: memoryBackend,
	}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/health")
	h.Get("/v1", c.Check)
}

func (c *healthController) Check(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{
		"vector_backend": c.vectorBackend,
		"memory_backend": c.memoryBackend,
	}))
}
