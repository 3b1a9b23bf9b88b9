package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
	domainScheduler "github.com/storylinehq/publisher/domains/scheduler"
	pkgError "github.com/storylinehq/publisher/pkg/error"
)

func ValidateUpdateSchedule(ctx context.Context, request domainScheduler.UpdateScheduleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Expression, validation.Required, validation.By(cronExpression)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func cronExpression(value interface{}) error {
	expr, _ := value.(string)
	_, err := cron.ParseStandard(expr)
	return err
}
