package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/Marga-Ghale/powerline-backend/internal/email"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// Mailer queues a templated email. *email.EmailQueue implements it.
type Mailer interface {
	Enqueue(to []string, subject, templateName string, data interface{})
}

// Service sends the emails that follow an enrollment
type Service struct {
	users  repository.UserRepository
	mailer Mailer
	appURL string
	log    *logrus.Entry
}

// NewService creates a new notification service
func NewService(users repository.UserRepository, mailer Mailer, appURL string) *Service {
	return &Service{
		users:  users,
		mailer: mailer,
		appURL: strings.TrimRight(appURL, "/"),
		log:    logrus.WithField("component", "notification"),
	}
}

// ============================================
// Enrollment Notifications
// ============================================

// NotifyEnrolled welcomes the new position holder and tells the sponsor,
// if any, about the recruit. Missing addresses are skipped.
func (s *Service) NotifyEnrolled(ctx context.Context, p *repository.Position) error {
	if p == nil {
		return nil
	}

	var sponsor *repository.User
	if p.SponsorID != nil {
		u, err := s.users.FindByID(ctx, *p.SponsorID)
		if err != nil {
			return fmt.Errorf("failed to look up sponsor: %w", err)
		}
		sponsor = u
	}

	to, name, err := s.recipient(ctx, p)
	if err != nil {
		return err
	}
	formatted := powerline.FormattedPosition(p.Position)

	if to != "" {
		data := email.WelcomeData{
			Name:              name,
			FormattedPosition: formatted,
			PositionURL:       s.appURL + "/powerline/my-position",
		}
		if sponsor != nil {
			data.SponsorName = sponsor.Name
		}
		s.mailer.Enqueue([]string{to}, fmt.Sprintf("Your PowerLine position %s is secured", formatted), email.TemplateWelcome, data)
	} else {
		s.log.WithField("user_id", p.UserID).Debug("No address for welcome email")
	}

	if sponsor != nil && sponsor.Email != "" {
		s.mailer.Enqueue([]string{sponsor.Email}, fmt.Sprintf("%s joined your team", name), email.TemplateSponsorRecruit, email.SponsorRecruitData{
			SponsorName:       sponsor.Name,
			RecruitName:       name,
			FormattedPosition: formatted,
			TeamURL:           s.appURL + "/powerline/sponsored",
		})
	}
	return nil
}

// recipient prefers the contact email given at enrollment over the
// account address.
func (s *Service) recipient(ctx context.Context, p *repository.Position) (string, string, error) {
	name := p.DisplayName
	if p.ContactEmail != nil && *p.ContactEmail != "" {
		return *p.ContactEmail, name, nil
	}

	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return "", name, nil
	}
	if name == "" {
		name = user.Name
	}
	return user.Email, name, nil
}
