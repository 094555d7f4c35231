package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

const (
	minYear = 1900
	maxYear = 2999
)

var calendarOrderingFields = []string{"year", "processed_at"}

type calendarApi struct {
	service       *calendar.Service
	validate      *validator.Validate
	appName       string
	maxUploadSize int64
}

func registerCalendarAPI(v1 *echo.Group, deps ServerDeps) {
	api := calendarApi{
		service:       deps.CalendarSvc,
		validate:      deps.Validate,
		appName:       deps.Conf.AppName,
		maxUploadSize: deps.Conf.Calendar.MaxUploadSize,
	}

	// leave room for the multipart envelope around the file
	bodyLimit := middleware.BodyLimit(fmt.Sprintf("%dK", (api.maxUploadSize+1024*1024)/1024))

	cals := v1.Group("/academic-calendars")
	cals.GET("", api.query)
	cals.POST("", api.create)
	cals.POST("/process", api.process, bodyLimit)
	cals.GET("/:year", api.retrieve)
	cals.DELETE("/:year", api.destroy)
	cals.POST("/:year/initialize", api.initialize)
	cals.GET("/:year/legends", api.legends)
	cals.GET("/:year/export.ics", api.exportICS)
	cals.GET("/:year/export.csv", api.exportCSV)

	legends := v1.Group("/legends")
	legends.GET("", api.allLegends)
	legends.PUT("/:type", api.updateLegend)
}

func (api calendarApi) query(ctx echo.Context) error {
	var ord Ordering
	if err := ord.Bind(ctx, calendarOrderingFields...); err != nil {
		return err
	}
	summaries, err := api.service.Query(ctx.Request().Context(), ord.Orderings...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api calendarApi) create(ctx echo.Context) error {
	var nc calendar.NewCalendar
	if err := ctx.Bind(&nc); err != nil {
		return errors.Wrap(err, "binding to NewCalendar")
	}
	if err := api.validate.Struct(nc); err != nil {
		return err
	}
	cal, err := api.service.Create(ctx.Request().Context(), nc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cal)
}

func (api calendarApi) process(ctx echo.Context) error {
	file, err := bindUpload(ctx, api.maxUploadSize)
	if err != nil {
		return err
	}
	req := calendar.ProcessRequest{
		DefaultLegendType: core.CleanString(ctx.FormValue("default_legend_type"), true),
		Filename:          file.Filename,
		Content:           file.Content,
	}
	if err = api.validate.Struct(req); err != nil {
		return err
	}
	cal, err := api.service.ProcessPDF(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cal)
}

func (api calendarApi) retrieve(ctx echo.Context) error {
	year, err := bindYear(ctx)
	if err != nil {
		return err
	}
	cal, err := api.service.Get(ctx.Request().Context(), year)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cal)
}

func (api calendarApi) destroy(ctx echo.Context) error {
	year, err := bindYear(ctx)
	if err != nil {
		return err
	}
	if err = api.service.Delete(ctx.Request().Context(), year); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api calendarApi) initialize(ctx echo.Context) error {
	year, err := bindYear(ctx)
	if err != nil {
		return err
	}
	if year < minYear || year > maxYear {
		return core.NewValidationError(errors.New("invalid year"), core.FieldError{
			Field: yearParam,
			Error: fmt.Sprintf("year must be between %d and %d", minYear, maxYear),
		})
	}

	var ic calendar.InitializeCalendar
	if err = ctx.Bind(&ic); err != nil {
		return errors.Wrap(err, "binding to InitializeCalendar")
	}
	ic.Year = year
	ic.DefaultLegendType = core.CleanString(ic.DefaultLegendType, true)
	if err = api.validate.Struct(ic); err != nil {
		return err
	}

	cal, err := api.service.Initialize(ctx.Request().Context(), ic)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cal)
}

func (api calendarApi) legends(ctx echo.Context) error {
	year, err := bindYear(ctx)
	if err != nil {
		return err
	}
	legends, err := api.service.Legends(ctx.Request().Context(), year)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, legends)
}

func (api calendarApi) exportICS(ctx echo.Context) error {
	return api.export(ctx, "ics", "text/calendar; charset=utf-8", func(buf *bytes.Buffer, cal calendar.AcademicCalendar) error {
		return calendar.WriteICS(buf, cal.Data, api.appName, time.Now().UTC())
	})
}

func (api calendarApi) exportCSV(ctx echo.Context) error {
	return api.export(ctx, "csv", "text/csv; charset=utf-8", func(buf *bytes.Buffer, cal calendar.AcademicCalendar) error {
		return calendar.WriteCSV(buf, cal.Data)
	})
}

func (api calendarApi) export(
	ctx echo.Context,
	ext, contentType string,
	write func(buf *bytes.Buffer, cal calendar.AcademicCalendar) error,
) error {
	year, err := bindYear(ctx)
	if err != nil {
		return err
	}
	cal, err := api.service.Get(ctx.Request().Context(), year)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = write(&buf, cal); err != nil {
		return errors.Wrapf(err, "exporting calendar %d to %s", year, ext)
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="calendario_%d.%s"`, year, ext))
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}

func (api calendarApi) allLegends(ctx echo.Context) error {
	legends, err := api.service.AllLegends(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, legends)
}

func (api calendarApi) updateLegend(ctx echo.Context) error {
	dt, err := calendar.ParseDayType(ctx.Param("type"))
	if err != nil {
		return errHttpNotFound
	}

	var ul calendar.UpdateLegend
	if err = ctx.Bind(&ul); err != nil {
		return errors.Wrap(err, "binding to UpdateLegend")
	}
	if err = api.validate.Struct(ul); err != nil {
		return err
	}

	legend, err := api.service.UpdateLegend(ctx.Request().Context(), dt, ul)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, legend)
}
