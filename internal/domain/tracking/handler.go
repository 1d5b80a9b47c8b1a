package tracking

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/welltrack/welltrack/internal/platform/auth"
	"github.com/welltrack/welltrack/internal/platform/dates"
	"github.com/welltrack/welltrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, patient
	readGroup := api.Group("/track", auth.RequireRole("admin", "physician", "nurse", "patient"))
	readGroup.GET("/view", h.DatedView)
	readGroup.GET("/categories", h.SelectableCategories)
	readGroup.GET("/items/:id/questions", h.QuestionsWithOptions)
	readGroup.GET("/entries/:id/summaries", h.Summaries)

	// Write endpoints – admin, patient (patients author their own tracking data)
	writeGroup := api.Group("/track", auth.RequireRole("admin", "patient"))
	writeGroup.POST("/entries/:id/responses", h.SaveResponse)
	writeGroup.POST("/questions/:id/options", h.AddOption)
	writeGroup.POST("/items/:id/link", h.LinkItem)
	writeGroup.POST("/items/:id/unlink", h.UnlinkItem)
	writeGroup.POST("/custom-goals", h.AddCustomGoal)
	writeGroup.PUT("/custom-goals/:id", h.EditCustomGoal)
	writeGroup.DELETE("/custom-goals/:id", h.RemoveCustomGoal)
}

// patientID resolves the acting patient: an explicit patient_id query
// param (staff acting on a patient's behalf) or the token's own
// patient claim.
func (h *Handler) patientID(c echo.Context) (uuid.UUID, error) {
	if pid := c.QueryParam("patient_id"); pid != "" {
		return uuid.Parse(pid)
	}
	if pid := auth.PatientIDFromContext(c.Request().Context()); pid != "" {
		return uuid.Parse(pid)
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
}

func (h *Handler) userID(c echo.Context) uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// viewDate reads the date query param in MM-DD-YYYY wire format
// (YYYY-MM-DD prefixes accepted), defaulting to today.
func viewDate(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return dates.Truncate(time.Now()), nil
	}
	return dates.Parse(raw)
}

func (h *Handler) DatedView(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	date, err := viewDate(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}
	view, err := h.svc.DatedView(c.Request().Context(), patientID, h.userID(c), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) SelectableCategories(c echo.Context) error {
	p := pagination.FromContext(c)
	cats, total, err := h.svc.SelectableCategories(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(cats, total, p.Limit, p.Offset))
}

func (h *Handler) QuestionsWithOptions(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entryID := uuid.Nil
	if raw := c.QueryParam("entry_id"); raw != "" {
		if entryID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entry_id")
		}
	}
	qs, err := h.svc.QuestionsWithOptions(c.Request().Context(), itemID, entryID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, qs)
}

type saveResponseRequest struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
}

func (h *Handler) SaveResponse(c echo.Context) error {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req saveResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	resp, err := h.svc.SaveResponse(c.Request().Context(), entryID, req.QuestionID, req.Answer, h.userID(c), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, resp)
}

type addOptionRequest struct {
	Text string `json:"text"`
}

func (h *Handler) AddOption(c echo.Context) error {
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req addOptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	opt, err := h.svc.AddOption(c.Request().Context(), questionID, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, opt)
}

func (h *Handler) LinkItem(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	date, err := viewDate(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}
	entry, err := h.svc.LinkItem(c.Request().Context(), itemID, patientID, h.userID(c), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) UnlinkItem(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	if err := h.svc.UnlinkItem(c.Request().Context(), itemID, patientID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Summaries(c echo.Context) error {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sums, err := h.svc.Summaries(c.Request().Context(), entryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sums == nil {
		sums = []string{}
	}
	return c.JSON(http.StatusOK, sums)
}

func (h *Handler) AddCustomGoal(c echo.Context) error {
	var in CustomGoalInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	item, err := h.svc.AddCustomGoal(c.Request().Context(), patientID, h.userID(c), &in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) EditCustomGoal(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in CustomGoalInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.EditCustomGoal(c.Request().Context(), itemID, &in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) RemoveCustomGoal(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	if err := h.svc.RemoveCustomGoal(c.Request().Context(), itemID, patientID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
