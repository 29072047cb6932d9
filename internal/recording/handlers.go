package recording

import (
	"errors"
	"time"

	"backend-opentransit/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, defaultInactiveMinutes int) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.Start(c.Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		var (
			lineID *string
			status *Status
		)
		if v := c.Query("line_id"); v != "" {
			lineID = &v
		}
		if v := c.Query("status"); v != "" {
			st := Status(v)
			status = &st
		}
		skip := c.QueryInt("skip", 0)
		limit := c.QueryInt("limit", 100)

		sessions, err := svc.List(c.Context(), lineID, status, skip, limit)
		if err != nil {
			return httpError(err)
		}
		if sessions == nil {
			sessions = []Session{}
		}
		return c.JSON(sessions)
	})

	// literal route, registered ahead of the /:id tree
	r.Post("/cleanup/stale", func(c *fiber.Ctx) error {
		minutes := c.QueryInt("inactive_minutes", defaultInactiveMinutes)
		if minutes < 5 {
			return fiber.NewError(fiber.StatusBadRequest, "inactive_minutes must be at least 5")
		}
		report, err := svc.Sweep(c.Context(), time.Duration(minutes)*time.Minute)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(report)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/end", func(c *fiber.Ctx) error {
		var req EndRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.End(c.Context(), c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/cancel", func(c *fiber.Ctx) error {
		sess, err := svc.Cancel(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/resume", func(c *fiber.Ctx) error {
		sess, err := svc.Resume(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/locations", func(c *fiber.Ctx) error {
		var req LocationPoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddPoints(c.Context(), c.Params("id"), []LocationPoint{req})
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/:id/locations/batch", func(c *fiber.Ctx) error {
		var req struct {
			Points []LocationPoint `json:"points"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddPoints(c.Context(), c.Params("id"), req.Points)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/:id/locations", func(c *fiber.Ctx) error {
		points, err := svc.Points(c.Context(), c.Params("id"), c.QueryInt("skip", 0), c.QueryInt("limit", 1000))
		if err != nil {
			return httpError(err)
		}
		if points == nil {
			points = []LocationPoint{}
		}
		return c.JSON(points)
	})

	r.Post("/:id/sensors", func(c *fiber.Ctx) error {
		var req SensorReading
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddReadings(c.Context(), c.Params("id"), []SensorReading{req})
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/:id/sensors/batch", func(c *fiber.Ctx) error {
		var req struct {
			Readings []SensorReading `json:"readings"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddReadings(c.Context(), c.Params("id"), req.Readings)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/:id/sensors", func(c *fiber.Ctx) error {
		readings, err := svc.Readings(c.Context(), c.Params("id"), c.QueryInt("skip", 0), c.QueryInt("limit", 1000))
		if err != nil {
			return httpError(err)
		}
		if readings == nil {
			readings = []SensorReading{}
		}
		return c.JSON(readings)
	})
}

func httpError(err error) error {
	var (
		invalidState *InvalidStateError
		mergedLine   *MergedLineError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, geo.ErrInvalidGeometry),
		errors.As(err, &invalidState),
		errors.As(err, &mergedLine):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
