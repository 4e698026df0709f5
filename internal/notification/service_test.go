package notification

import (
	"context"
	"testing"

	"github.com/Marga-Ghale/powerline-backend/internal/email"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to       []string
	subject  string
	template string
	data     interface{}
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Enqueue(to []string, subject, templateName string, data interface{}) {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, template: templateName, data: data})
}

func newUser(t *testing.T, users *repository.MemoryUserRepository, email, name string) *repository.User {
	t.Helper()
	u := &repository.User{Email: email, Name: name}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestNotifyEnrolledWithSponsor(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	sponsor := newUser(t, users, "grace@example.com", "Grace Hopper")
	recruit := newUser(t, users, "ada@example.com", "Ada Lovelace")

	mailer := &fakeMailer{}
	svc := NewService(users, mailer, "https://app.example/")

	err := svc.NotifyEnrolled(context.Background(), &repository.Position{
		Position:    1234,
		UserID:      recruit.ID,
		DisplayName: "Ada",
		SponsorID:   &sponsor.ID,
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 2)

	welcome := mailer.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, welcome.to)
	assert.Equal(t, email.TemplateWelcome, welcome.template)
	assert.Contains(t, welcome.subject, "#1,234")
	data := welcome.data.(email.WelcomeData)
	assert.Equal(t, "Ada", data.Name)
	assert.Equal(t, "Grace Hopper", data.SponsorName)
	assert.Equal(t, "https://app.example/powerline/my-position", data.PositionURL)

	recruitMail := mailer.sent[1]
	assert.Equal(t, []string{"grace@example.com"}, recruitMail.to)
	assert.Equal(t, email.TemplateSponsorRecruit, recruitMail.template)
	assert.Equal(t, "Ada", recruitMail.data.(email.SponsorRecruitData).RecruitName)
}

func TestNotifyEnrolledPrefersContactEmail(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	user := newUser(t, users, "account@example.com", "Alan Turing")

	mailer := &fakeMailer{}
	svc := NewService(users, mailer, "")

	contact := "alan@contact.example"
	require.NoError(t, svc.NotifyEnrolled(context.Background(), &repository.Position{
		Position:     3,
		UserID:       user.ID,
		ContactEmail: &contact,
	}))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{contact}, mailer.sent[0].to)
}

func TestNotifyEnrolledUnknownUser(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(repository.NewMemoryUserRepository(), mailer, "")

	require.NoError(t, svc.NotifyEnrolled(context.Background(), &repository.Position{Position: 1, UserID: "ghost"}))
	assert.Empty(t, mailer.sent)
}
