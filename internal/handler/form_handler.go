package handler

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/middleware"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/service"
	"github.com/stockwatch/alert-composer/internal/session"
)

// FormHandler handles alert form session requests
type FormHandler struct {
	alertService *service.AlertService
	logger       *zap.Logger
}

// NewFormHandler creates a new form handler
func NewFormHandler(alertService *service.AlertService, logger *zap.Logger) *FormHandler {
	return &FormHandler{
		alertService: alertService,
		logger:       logger,
	}
}

// formResponse is the body of every form endpoint
type formResponse struct {
	FormID       string             `json:"form_id"`
	Form         alertform.Snapshot `json:"form"`
	CatalogError string             `json:"catalog_error,omitempty"`
}

func render(sess *session.Session) formResponse {
	resp := formResponse{FormID: sess.ID()}
	_ = sess.Do(func(ctrl *alertform.Controller) error {
		resp.Form = ctrl.Snapshot()
		return nil
	})
	if err := sess.CatalogErr(); err != nil {
		resp.CatalogError = "Failed to load indicators. Select the indicator again to retry."
	}
	return resp
}

// session loads the form session named in the path, writing 404 when absent
func (h *FormHandler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.alertService.Session(c.Param("id"), c.GetString(middleware.OwnerKey))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
		return nil, false
	}
	return sess, true
}

// formError writes the response for a rejected form operation
func (h *FormHandler) formError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, alertform.ErrConditionNotFound), errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, alertform.ErrAlertTypeLocked),
		errors.Is(err, alertform.ErrChainFull),
		errors.Is(err, alertform.ErrNotChain):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// CreateForm handles opening a form for a new alert
// POST /api/v1/forms
func (h *FormHandler) CreateForm(c *gin.Context) {
	var request struct {
		Stock     string `json:"stock" binding:"required"`
		AlertType string `json:"alert_type" binding:"omitempty,oneof=PRICE PERCENT_CHANGE INDICATOR_CHAIN"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := h.alertService.NewForm(c.GetString(middleware.OwnerKey), c.GetString(middleware.TokenKey), request.Stock)
	if request.AlertType != "" {
		err := sess.Do(func(ctrl *alertform.Controller) error {
			return ctrl.SetAlertType(model.AlertType(request.AlertType))
		})
		if err != nil {
			h.formError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, render(sess))
}

// EditAlert handles opening a form seeded from an existing alert
// POST /api/v1/alerts/{id}/form
func (h *FormHandler) EditAlert(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	sess, err := h.alertService.EditForm(c.Request.Context(), c.GetString(middleware.OwnerKey), c.GetString(middleware.TokenKey), id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.logger.Error("Failed to open alert for editing", zap.Int("alertID", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load alert"})
		return
	}

	c.JSON(http.StatusCreated, render(sess))
}

// GetForm handles retrieving the state of a form
// GET /api/v1/forms/{id}
func (h *FormHandler) GetForm(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// DeleteForm handles discarding a form
// DELETE /api/v1/forms/{id}
func (h *FormHandler) DeleteForm(c *gin.Context) {
	if err := h.alertService.CloseForm(c.Param("id"), c.GetString(middleware.OwnerKey)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetAlertType handles switching the alert type of a form
// PUT /api/v1/forms/{id}/alert-type
func (h *FormHandler) SetAlertType(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var request struct {
		AlertType string `json:"alert_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		return ctrl.SetAlertType(model.AlertType(request.AlertType))
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// fieldOrder puts fields that reconfigure the form before the fields they govern
func fieldOrder(fields map[string]any, first ...string) []string {
	rank := make(map[string]int, len(first))
	for i, name := range first {
		rank[name] = i - len(first)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank[names[i]], rank[names[j]]
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

// UpdateFields handles setting top level fields of a form
// PATCH /api/v1/forms/{id}/fields
func (h *FormHandler) UpdateFields(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		for _, name := range fieldOrder(fields, alertform.FieldAlertType, alertform.FieldLookbackPeriod) {
			if err := ctrl.SetField(name, fields[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// AddCondition handles appending a condition to an indicator chain
// POST /api/v1/forms/{id}/conditions
func (h *FormHandler) AddCondition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		_, err := ctrl.AddCondition()
		return err
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusCreated, render(sess))
}

// UpdateCondition handles editing a condition. value_type is applied first,
// then indicator selections, then plain fields.
// PATCH /api/v1/forms/{id}/conditions/{cid}
func (h *FormHandler) UpdateCondition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	id := model.ConditionID(c.Param("cid"))

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if vt, ok := fields[alertform.FieldValueType]; ok {
		err := sess.Do(func(ctrl *alertform.Controller) error {
			cond, found := ctrl.Condition(id)
			if !found {
				return alertform.ErrConditionNotFound
			}
			s, _ := vt.(string)
			cond.SetValueType(model.ValueType(s))
			return nil
		})
		if err != nil {
			h.formError(c, err)
			return
		}
	}

	for field, slot := range map[string]alertform.Slot{
		alertform.FieldIndicator:      alertform.SourceSlot,
		alertform.FieldValueIndicator: alertform.ValueSlot,
	} {
		v, ok := fields[field]
		if !ok {
			continue
		}
		name, _ := v.(string)
		if _, _, err := sess.SelectIndicator(id, slot, name); err != nil {
			h.formError(c, err)
			return
		}
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		cond, found := ctrl.Condition(id)
		if !found {
			return alertform.ErrConditionNotFound
		}
		for _, name := range fieldOrder(fields) {
			switch name {
			case alertform.FieldValueType, alertform.FieldIndicator, alertform.FieldValueIndicator:
				continue
			}
			if err := cond.SetField(name, fields[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// RemoveCondition handles deleting a condition
// DELETE /api/v1/forms/{id}/conditions/{cid}
func (h *FormHandler) RemoveCondition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		return ctrl.RemoveCondition(model.ConditionID(c.Param("cid")))
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// UpdateParameters handles setting parameters of the source indicator
// PATCH /api/v1/forms/{id}/conditions/{cid}/parameters
func (h *FormHandler) UpdateParameters(c *gin.Context) {
	h.updateParameters(c, alertform.SourceSlot)
}

// UpdateValueParameters handles setting parameters of the value indicator
// PATCH /api/v1/forms/{id}/conditions/{cid}/value-parameters
func (h *FormHandler) UpdateValueParameters(c *gin.Context) {
	h.updateParameters(c, alertform.ValueSlot)
}

func (h *FormHandler) updateParameters(c *gin.Context, slot alertform.Slot) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var params map[string]any
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := sess.Do(func(ctrl *alertform.Controller) error {
		cond, found := ctrl.Condition(model.ConditionID(c.Param("cid")))
		if !found {
			return alertform.ErrConditionNotFound
		}
		for _, name := range fieldOrder(params) {
			if err := cond.SetParameter(slot, name, params[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.formError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(sess))
}

// Submit handles sending a form to the backend
// POST /api/v1/forms/{id}/submit
func (h *FormHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	result, err := h.alertService.Submit(c.Request.Context(), sess)
	if err == nil {
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		c.JSON(status, result)
		return
	}

	var rejected *service.RejectedError
	switch {
	case errors.Is(err, service.ErrInvalidForm):
		resp := render(sess)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Please correct the highlighted fields.",
			"form_id": resp.FormID,
			"form":    resp.Form,
		})
	case errors.As(err, &rejected):
		message := rejected.Result.Detail
		if message == "" {
			message = "The alert could not be saved. Please review the highlighted fields."
		}
		resp := render(sess)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     message,
			"unmatched": rejected.Result.Unmatched,
			"form_id":   resp.FormID,
			"form":      resp.Form,
		})
	case errors.Is(err, client.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, alertform.ErrUnknownAlertType):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare alert"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to save alert"})
	}
}
