package rest

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	domainScheduler "github.com/storylinehq/publisher/domains/scheduler"
	"github.com/storylinehq/publisher/pkg/utils"
	"github.com/storylinehq/publisher/validations"
)

type Scheduler struct {
	Service domainScheduler.ISchedulerUsecase
}

func InitRestScheduler(app fiber.Router, service domainScheduler.ISchedulerUsecase) Scheduler {
	rest := Scheduler{Service: service}
	app.Get("/scheduler/status", rest.Status)
	app.Post("/scheduler/trigger", rest.Trigger)
	app.Put("/scheduler/schedule", rest.UpdateSchedule)
	app.Post("/scheduler/queue/clear", rest.ClearQueue)
	app.Post("/scheduler/retry/:id", rest.RetryItem)
	app.Get("/scheduler/results", rest.Results)
	return rest
}

func (controller *Scheduler) Status(c *fiber.Ctx) error {
	status := controller.Service.GetStatus(c.UserContext())

	results := map[string]any{
		"status": status,
	}
	if status.LastRunAt != nil {
		results["last_run_human"] = humanize.Time(*status.LastRunAt)
	}
	if status.NextRunAt != nil {
		results["next_run_human"] = humanize.Time(*status.NextRunAt)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch scheduler status",
		Results: results,
	})
}

func (controller *Scheduler) Trigger(c *fiber.Ctx) error {
	result := controller.Service.TriggerFromWebhook(c.UserContext())

	if result.Status == domainScheduler.CycleBusy {
		return c.Status(409).JSON(utils.ResponseData{
			Status:  409,
			Code:    "BUSY",
			Message: "A publication cycle is already in progress",
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success trigger publication cycle",
		Results: result,
	})
}

func (controller *Scheduler) UpdateSchedule(c *fiber.Ctx) error {
	var request domainScheduler.UpdateScheduleRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateUpdateSchedule(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	err = controller.Service.UpdateCronExpression(request.Expression)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success update schedule",
		Results: map[string]any{
			"expression": request.Expression,
		},
	})
}

func (controller *Scheduler) ClearQueue(c *fiber.Ctx) error {
	removed := controller.Service.ClearStaleQueueEntries()

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success clear stale queue entries",
		Results: map[string]any{
			"removed": removed,
		},
	})
}

func (controller *Scheduler) RetryItem(c *fiber.Ctx) error {
	itemID := c.Params("id")
	if itemID == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "id is required",
		})
	}

	err := controller.Service.RetryItem(c.UserContext(), itemID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success retry item",
	})
}

func (controller *Scheduler) Results(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.Status(400).JSON(utils.ResponseData{
				Status:  400,
				Code:    "BAD_REQUEST",
				Message: "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	records := controller.Service.RecentResults(limit)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch publish results",
		Results: records,
	})
}
