package jobs

import (
	"net/http"

	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	jobService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	job, err := h.jobService.RetrieveJob(c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) list(c echo.Context) error {
	// Bind params.
	params := ListJobsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ListJobsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		Statuses: params.Status,
		UserID:   params.UserID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Jobs   []models.RenameJob `json:"jobs"`
		Total  int                `json:"total"`
		Counts map[string]int     `json:"counts"`
	}{jobs, total, h.jobService.CountByStatus()}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
