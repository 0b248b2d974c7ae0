package services

import (
	"context"
	"strings"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"go.uber.org/zap"
)

type ApplicationForm struct {
	RealName       string
	IDNumber       string
	StudentNumber  string
	Phone          string
	IDCardFrontURL string
	IDCardBackURL  string
}

type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// ApplicationService handles requests to become a delivery or receiver user.
type ApplicationService struct {
	store repository.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewApplicationService(store repository.Store, log *zap.Logger) *ApplicationService {
	return &ApplicationService{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ApplicationService) Apply(ctx context.Context, userID uint64, t domain.ApplicationType, form ApplicationForm) (*domain.RoleApplication, error) {
	if t != domain.ApplicationDelivery && t != domain.ApplicationReceiver {
		return nil, domain.NewError(domain.KindValidation, "unknown application type %q", t)
	}
	if missing := form.missing(); missing != "" {
		return nil, domain.NewError(domain.KindValidation, "%s is required", missing)
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user")
	}
	if (t == domain.ApplicationDelivery && user.IsDelivery) || (t == domain.ApplicationReceiver && user.IsReceiver) {
		return nil, domain.NewError(domain.KindValidation, "user already holds the %s role", t)
	}

	pending, err := s.store.Applications().HasPending(ctx, userID, t)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to check applications", err)
	}
	if pending {
		return nil, domain.NewError(domain.KindConflict, "a %s application is already under review", t)
	}

	now := s.now()
	app := &domain.RoleApplication{
		UserID:          userID,
		ApplicationType: t,
		RealName:        strings.TrimSpace(form.RealName),
		IDNumber:        strings.TrimSpace(form.IDNumber),
		StudentNumber:   strings.TrimSpace(form.StudentNumber),
		Phone:           strings.TrimSpace(form.Phone),
		IDCardFrontURL:  form.IDCardFrontURL,
		IDCardBackURL:   form.IDCardBackURL,
		Status:          domain.ApplicationPending,
		CreateTime:      now,
		UpdateTime:      now,
	}
	if err := s.store.Applications().Save(ctx, app); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to save application", err)
	}
	s.log.Info("role application submitted",
		zap.Uint64("application_id", app.ID),
		zap.Uint64("user_id", userID),
		zap.String("type", string(t)))
	return app, nil
}

func (f ApplicationForm) missing() string {
	fields := []struct {
		name  string
		value string
	}{
		{"realName", f.RealName},
		{"idNumber", f.IDNumber},
		{"studentNumber", f.StudentNumber},
		{"phone", f.Phone},
		{"idCardFrontUrl", f.IDCardFrontURL},
		{"idCardBackUrl", f.IDCardBackURL},
	}
	for _, fl := range fields {
		if strings.TrimSpace(fl.value) == "" {
			return fl.name
		}
	}
	return ""
}

func (s *ApplicationService) MyApplications(ctx context.Context, userID uint64) ([]domain.RoleApplication, error) {
	apps, err := s.store.Applications().FindByUser(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list applications", err)
	}
	if apps == nil {
		apps = []domain.RoleApplication{}
	}
	return apps, nil
}

// Review approves or rejects a pending application. Approval grants the
// role in the same transaction.
func (s *ApplicationService) Review(ctx context.Context, adminID, applicationID uint64, action ReviewAction, comment string) (*domain.RoleApplication, error) {
	var status domain.ApplicationStatus
	switch action {
	case ReviewApprove:
		status = domain.ApplicationApproved
	case ReviewReject:
		status = domain.ApplicationRejected
	default:
		return nil, domain.NewError(domain.KindValidation, "unknown review action %q", action)
	}

	now := s.now()
	var reviewed *domain.RoleApplication
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		app, err := tx.Applications().FindByID(ctx, applicationID)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to load application", err)
		}
		if app == nil {
			return domain.ErrNotFound("application")
		}

		ok, err := tx.Applications().Review(ctx, applicationID, status, adminID, comment, now)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to review application", err)
		}
		if !ok {
			return domain.NewError(domain.KindConflict, "application %d was already reviewed", applicationID)
		}

		if status == domain.ApplicationApproved {
			if err := tx.Users().GrantRole(ctx, app.UserID, app.ApplicationType); err != nil {
				return domain.WrapError(domain.KindInternal, "failed to grant role", err)
			}
		}

		reviewed, err = tx.Applications().FindByID(ctx, applicationID)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to reload application", err)
		}
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			s.log.Error("application review failed", zap.Uint64("application_id", applicationID), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("role application reviewed",
		zap.Uint64("application_id", applicationID),
		zap.Uint64("reviewer_id", adminID),
		zap.String("status", string(status)))
	return reviewed, nil
}
