package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/events"
	"github.com/stockwatch/alert-composer/internal/fielderrors"
	"github.com/stockwatch/alert-composer/internal/metrics"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/payload"
	"github.com/stockwatch/alert-composer/internal/session"
)

// ErrInvalidForm is returned when local validation blocks a submission
var ErrInvalidForm = errors.New("alert form is invalid")

// RejectedError is returned when the backend refused the alert. The messages
// it could place are attached to the form; Result says what was left over.
type RejectedError struct {
	Result fielderrors.Result
}

func (e *RejectedError) Error() string {
	if e.Result.Detail != "" {
		return "backend rejected the alert: " + e.Result.Detail
	}
	return "backend rejected the alert"
}

// Backend is the part of the REST backend the service needs
type Backend interface {
	ListAlerts(ctx context.Context, token string) ([]model.AlertDetail, error)
	GetAlert(ctx context.Context, token string, id int) (*model.AlertDetail, error)
	CreateAlert(ctx context.Context, token string, payload model.AlertPayload) (int, error)
	UpdateAlert(ctx context.Context, token string, id int, payload model.AlertPayload) error
	DeleteAlert(ctx context.Context, token string, id int) error
}

// Emitter queues events for publishing
type Emitter interface {
	Emit(e events.Event)
}

// SubmitResult describes a stored alert
type SubmitResult struct {
	AlertID int  `json:"alert_id"`
	Created bool `json:"created"`
}

// AlertService handles alert business logic
type AlertService struct {
	backend  Backend
	sessions *session.Store
	events   Emitter
	logger   *zap.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(backend Backend, sessions *session.Store, emitter Emitter, logger *zap.Logger) *AlertService {
	return &AlertService{
		backend:  backend,
		sessions: sessions,
		events:   emitter,
		logger:   logger,
	}
}

// NewForm opens a form session for a new alert on stock
func (s *AlertService) NewForm(owner, token, stock string) *session.Session {
	return s.sessions.Open(owner, token, alertform.NewController(stock))
}

// EditForm loads an existing alert and opens a form session seeded from it
func (s *AlertService) EditForm(ctx context.Context, owner, token string, alertID int) (*session.Session, error) {
	detail, err := s.backend.GetAlert(ctx, token, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	ctrl, err := alertform.NewEditController(detail)
	if err != nil {
		s.logger.Error("Backend returned an alert that cannot be edited",
			zap.Int("alertID", alertID),
			zap.Error(err))
		return nil, err
	}
	return s.sessions.Open(owner, token, ctrl), nil
}

// Session returns an open form session of owner
func (s *AlertService) Session(id, owner string) (*session.Session, error) {
	return s.sessions.Get(id, owner)
}

// CloseForm discards a form session
func (s *AlertService) CloseForm(id, owner string) error {
	return s.sessions.Close(id, owner)
}

// ListAlerts returns the alerts of the token owner
func (s *AlertService) ListAlerts(ctx context.Context, token string) ([]model.AlertDetail, error) {
	alerts, err := s.backend.ListAlerts(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert deletes an alert
func (s *AlertService) DeleteAlert(ctx context.Context, owner, token string, alertID int) error {
	if err := s.backend.DeleteAlert(ctx, token, alertID); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	s.events.Emit(events.Event{Type: events.TypeAlertDeleted, AlertID: alertID, Owner: owner})
	return nil
}

// Submit validates the form of sess, sends it to the backend and closes the
// session on success. The session is unlocked while the backend is called; a
// rejection is mapped back onto the conditions that were sent, by identity.
func (s *AlertService) Submit(ctx context.Context, sess *session.Session) (*SubmitResult, error) {
	var (
		res       payload.Result
		alertID   *int
		alertType model.AlertType
	)

	err := sess.Do(func(ctrl *alertform.Controller) error {
		alertType = ctrl.AlertType()
		ctrl.ClearServerErrors()
		ctrl.MarkAllTouched()
		if err := ctrl.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidForm, err)
		}

		var err error
		res, err = payload.Serialize(ctrl)
		if err != nil {
			return err
		}
		alertID = ctrl.AlertID()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidForm) {
			metrics.Submit(string(alertType), "invalid")
		} else {
			metrics.Submit(string(alertType), "error")
			s.logger.Error("Failed to serialize alert form",
				zap.String("session", sess.ID()),
				zap.Error(err))
		}
		return nil, err
	}

	result := &SubmitResult{}
	if alertID != nil {
		result.AlertID = *alertID
		err = s.backend.UpdateAlert(ctx, sess.Token(), *alertID, res.Payload)
	} else {
		result.Created = true
		result.AlertID, err = s.backend.CreateAlert(ctx, sess.Token(), res.Payload)
	}

	var verr *client.ValidationError
	switch {
	case errors.As(err, &verr):
		var mapped fielderrors.Result
		_ = sess.Do(func(ctrl *alertform.Controller) error {
			mapped = fielderrors.Apply(ctrl, res.Order, verr.Body, s.logger)
			return nil
		})
		metrics.Submit(string(alertType), "rejected")
		s.events.Emit(events.Event{
			Type:      events.TypeAlertRejected,
			AlertID:   result.AlertID,
			AlertType: alertType,
			Stock:     res.Payload.Stock,
			Owner:     sess.Owner(),
		})
		return nil, &RejectedError{Result: mapped}
	case err != nil:
		metrics.Submit(string(alertType), "error")
		s.logger.Error("Failed to store alert",
			zap.String("session", sess.ID()),
			zap.String("alertType", string(alertType)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	eventType, outcome := events.TypeAlertUpdated, "updated"
	if result.Created {
		eventType, outcome = events.TypeAlertCreated, "created"
	}
	metrics.Submit(string(alertType), outcome)

	conditions := 0
	if res.Payload.Chain != nil {
		conditions = len(res.Payload.Chain.Conditions)
	}
	s.events.Emit(events.Event{
		Type:       eventType,
		AlertID:    result.AlertID,
		AlertType:  alertType,
		Stock:      res.Payload.Stock,
		Owner:      sess.Owner(),
		Conditions: conditions,
	})

	if err := s.sessions.Close(sess.ID(), sess.Owner()); err != nil {
		s.logger.Debug("Form session already closed", zap.String("session", sess.ID()))
	}
	s.logger.Info("Alert stored",
		zap.Int("alertID", result.AlertID),
		zap.String("alertType", string(alertType)),
		zap.Bool("created", result.Created))
	return result, nil
}
