package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/repository"
)

type fakeNotificationRepo struct {
	lastStatus   domain.Status
	lastAttempt  *domain.NotificationAttempt
	statusWrites int
	appended     []*domain.NotificationAttempt
	err          error
}

func (f *fakeNotificationRepo) CreateIfAbsent(ctx context.Context, r *domain.NotificationRecord) error {
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeNotificationRepo) UpdateStatusWithAttempt(ctx context.Context, id string, status domain.Status, attempt *domain.NotificationAttempt) error {
	if f.err != nil {
		return f.err
	}
	f.lastStatus = status
	f.lastAttempt = attempt
	f.statusWrites++
	return nil
}

func (f *fakeNotificationRepo) AppendAttempt(ctx context.Context, attempt *domain.NotificationAttempt) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, attempt)
	return nil
}

func TestUpdateStatusRecordsAttempt(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	s, err := NewStateService(repo, nil)
	if err != nil {
		t.Fatalf("NewStateService() error = %v", err)
	}

	err = s.UpdateStatus(context.Background(), "n-1", domain.StatusFailed, "provider down", "prov-1")
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if repo.lastStatus != domain.StatusFailed {
		t.Fatalf("status = %v", repo.lastStatus)
	}
	attempt := repo.lastAttempt
	if attempt == nil || attempt.NotificationID != "n-1" || attempt.Error != "provider down" {
		t.Fatalf("attempt = %+v", attempt)
	}
	if attempt.ID == "" {
		t.Fatal("attempt must get an id")
	}
	if attempt.ProviderMessageID != "prov-1" {
		t.Fatalf("provider message id = %q", attempt.ProviderMessageID)
	}
}

func TestUpdateStatusTruncatesError(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	s, err := NewStateService(repo, nil)
	if err != nil {
		t.Fatalf("NewStateService() error = %v", err)
	}

	long := strings.Repeat("e", domain.MaxAttemptErrorLength*2)
	if err := s.UpdateStatus(context.Background(), "n-1", domain.StatusFailed, long, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got := len(repo.lastAttempt.Error); got != domain.MaxAttemptErrorLength {
		t.Fatalf("attempt error length = %d", got)
	}
}

func TestAppendAttemptDoesNotWriteStatus(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	s, err := NewStateService(repo, nil)
	if err != nil {
		t.Fatalf("NewStateService() error = %v", err)
	}

	err = s.AppendAttempt(context.Background(), "n-1", domain.StatusSent, "provider event: open", "prov-1")
	if err != nil {
		t.Fatalf("AppendAttempt() error = %v", err)
	}

	if repo.statusWrites != 0 {
		t.Fatal("AppendAttempt must not touch the record status")
	}
	if len(repo.appended) != 1 {
		t.Fatalf("appended = %d, want 1", len(repo.appended))
	}
	attempt := repo.appended[0]
	if attempt.NotificationID != "n-1" || attempt.Status != domain.StatusSent {
		t.Fatalf("attempt = %+v", attempt)
	}
	if attempt.ID == "" {
		t.Fatal("attempt must get an id")
	}
}

func TestAppendAttemptRejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	s, err := NewStateService(&fakeNotificationRepo{}, nil)
	if err != nil {
		t.Fatalf("NewStateService() error = %v", err)
	}

	err = s.AppendAttempt(context.Background(), "n-1", domain.Status("LOST"), "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("AppendAttempt() error = %v, want validation error", err)
	}
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	s, err := NewStateService(&fakeNotificationRepo{}, nil)
	if err != nil {
		t.Fatalf("NewStateService() error = %v", err)
	}

	err = s.UpdateStatus(context.Background(), "n-1", domain.Status("LOST"), "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("UpdateStatus() error = %v, want validation error", err)
	}
}
