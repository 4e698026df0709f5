// internal/seed/seed.go
package seed

import (
	"context"
	"fmt"

	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const devPassword = "password123"

type seedUser struct {
	email   string
	name    string
	role    string
	sponsor string // email of the sponsoring seed user
	source  string
}

// Accounts are enrolled in order, so the first one holds position #1.
var seedUsers = []seedUser{
	{email: "admin@powerline.dev", name: "PowerLine Admin", role: types.RoleAdmin, source: types.SourceManualAdmin},
	{email: "grace@powerline.dev", name: "Grace Hopper", role: types.RoleMember},
	{email: "ada@powerline.dev", name: "Ada Lovelace", role: types.RoleMember, sponsor: "grace@powerline.dev", source: types.SourceDirectInvitation},
	{email: "alan@powerline.dev", name: "Alan Turing", role: types.RoleMember, sponsor: "grace@powerline.dev", source: types.SourceFunnelCapture},
	{email: "katherine@powerline.dev", name: "Katherine Johnson", role: types.RoleMember, sponsor: "ada@powerline.dev", source: types.SourceEventSignup},
}

// SeedData creates development accounts and enrolls them in the queue. It
// does nothing when users already exist.
func SeedData(ctx context.Context, repos *repository.Repositories, services *service.Services) error {
	log := logrus.WithField("component", "seed")

	count, err := repos.UserRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		log.Info("Data already exists, skipping...")
		return nil
	}

	log.Info("Creating development accounts...")

	password, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ids := make(map[string]string, len(seedUsers))
	for _, su := range seedUsers {
		user := &repository.User{
			Email:    su.email,
			Password: string(password),
			Name:     su.name,
			Role:     su.role,
			Status:   types.UserActive,
		}
		if err := repos.UserRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create %s: %w", su.email, err)
		}
		ids[su.email] = user.ID

		req := service.EnrollRequest{UserID: user.ID, DisplayName: su.name, Source: su.source}
		if sponsorID, ok := ids[su.sponsor]; ok {
			req.SponsorID = &sponsorID
		}
		p, err := services.Position.Enroll(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to enroll %s: %w", su.email, err)
		}

		entry := log.WithFields(logrus.Fields{"email": su.email, "role": su.role, "position": p.Position})
		if token, err := services.Auth.IssueToken(user.ID); err == nil {
			entry = entry.WithField("token", token)
		}
		entry.Info("Seeded account")
	}

	log.WithField("accounts", len(seedUsers)).Info("Seed complete")
	return nil
}
