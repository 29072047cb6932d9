package line

import (
	"errors"

	"backend-opentransit/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

// Feature is a GeoJSON Feature wrapping a line's path for mapping clients.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req Line
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		ln, err := svc.Create(c.Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ln)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		status := Status(c.Query("status", string(StatusApproved)))
		includeAll := c.QueryBool("include_all", false)
		skip := c.QueryInt("skip", 0)
		limit := c.QueryInt("limit", 100)

		lines, err := svc.List(c.Context(), status, includeAll, skip, limit)
		if err != nil {
			return httpError(err)
		}
		if lines == nil {
			lines = []Line{}
		}
		return c.JSON(lines)
	})

	// registered before /:id so the literal segment wins
	r.Get("/nearby", func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat")
		lng := c.QueryFloat("lng")
		radiusM := c.QueryFloat("radius_m", 500)
		if err := geo.ValidatePoint(lng, lat); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		lines, err := svc.Nearby(c.Context(), lat, lng, radiusM)
		if err != nil {
			return httpError(err)
		}
		if lines == nil {
			lines = []Line{}
		}
		return c.JSON(lines)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		ln, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ln)
	})

	r.Get("/:id/geojson", func(c *fiber.Ctx) error {
		ln, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		if len(ln.Path) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "line has no path")
		}
		return c.JSON(Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "LineString",
				Coordinates: ln.Path,
			},
			Properties: map[string]any{
				"id":     ln.ID,
				"name":   ln.Name,
				"status": ln.Status,
			},
		})
	})

	r.Patch("/:id", func(c *fiber.Ctx) error {
		var req UpdateInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ln, err := svc.Update(c.Context(), c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ln)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/approve", func(c *fiber.Ctx) error {
		ln, err := svc.Approve(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(ln)
	})

	r.Post("/:id/merge/:target_id", func(c *fiber.Ctx) error {
		target, err := svc.Merge(c.Context(), c.Params("id"), c.Params("target_id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(target)
	})
}

func httpError(err error) error {
	var (
		invalidState  *InvalidStateError
		alreadyMerged *AlreadyMergedError
		targetMerged  *TargetMergedError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrSelfMerge),
		errors.Is(err, ErrStatusReserved),
		errors.Is(err, geo.ErrInvalidGeometry),
		errors.As(err, &invalidState),
		errors.As(err, &alreadyMerged),
		errors.As(err, &targetMerged):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
