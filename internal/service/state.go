package service

import (
	"context"
	"fmt"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StateService is the single writer of notification status transitions.
// Every component that changes a record's status (worker, webhook
// reconciler) goes through UpdateStatus, which always records an attempt
// alongside the transition.
type StateService struct {
	records repository.NotificationRepository
	logger  *zap.Logger
}

func NewStateService(records repository.NotificationRepository, logger *zap.Logger) (*StateService, error) {
	if records == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateService{records: records, logger: logger}, nil
}

func (s *StateService) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.Status,
	message string,
	providerMessageID string,
) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	attempt := &domain.NotificationAttempt{
		ID:                uuid.NewString(),
		NotificationID:    id,
		Status:            status,
		Error:             domain.TruncateAttemptError(message),
		ProviderMessageID: providerMessageID,
	}

	if err := s.records.UpdateStatusWithAttempt(ctx, id, status, attempt); err != nil {
		return err
	}

	s.logger.Info("notification status updated",
		zap.String("notificationId", id),
		zap.String("status", status.String()),
	)
	return nil
}

// AppendAttempt records an attempt without changing the record's status. The
// attempt carries the status the caller observed, purely as history; the
// record itself is not written, so this can never clobber a concurrent
// transition.
func (s *StateService) AppendAttempt(
	ctx context.Context,
	id string,
	status domain.Status,
	message string,
	providerMessageID string,
) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	attempt := &domain.NotificationAttempt{
		ID:                uuid.NewString(),
		NotificationID:    id,
		Status:            status,
		Error:             domain.TruncateAttemptError(message),
		ProviderMessageID: providerMessageID,
	}

	if err := s.records.AppendAttempt(ctx, attempt); err != nil {
		return err
	}

	s.logger.Debug("notification attempt recorded",
		zap.String("notificationId", id),
		zap.String("status", status.String()),
	)
	return nil
}
