package controller

import (
	"cv-search-be/internal/dto"
	"cv-search-be/internal/pkg/serverutils"
	"cv-search-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IQueryController interface {
	RegisterRoutes(r fiber.Router)
	Search(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type queryController struct {
	service service.IQueryService
}

func NewQueryController(service service.IQueryService) IQueryController {
	return &queryController{service: service}
}

func (c *queryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/query")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/v1", c.Search)
	h.Get("/v1/history", c.History)
}

func (c *queryController) Search(ctx *fiber.Ctx) error {
	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.Search(ctx.Context(), serverutils.CallerEmail(ctx), req)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Query processed", res))
}

func (c *queryController) History(ctx *fiber.Ctx) error {
	sessionID := ctx.Query("session_id", "")
	limit := ctx.QueryInt("limit", 10)

	res, err := c.service.History(ctx.Context(), serverutils.CallerEmail(ctx), sessionID, limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show history", res))
}
