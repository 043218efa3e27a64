package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/models"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	resp, _ := args.Get(0).(*rest.Response)
	return resp, args.Error(1)
}

func testCode() models.AccessCode {
	return models.AccessCode{
		ID:        "c1",
		Code:      "ABCD-EFGH",
		Role:      models.RoleEmployee,
		Email:     "jane@example.com",
		ExpiresAt: time.Date(2026, 7, 4, 10, 30, 0, 0, time.UTC),
	}
}

func TestMailer_SendInvitation(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendWithContext", mock.Anything, mock.MatchedBy(func(m *mail.SGMailV3) bool {
		return m.Subject == "Your access code for Acme" &&
			len(m.Personalizations) == 1 &&
			m.Personalizations[0].To[0].Address == "jane@example.com"
	})).Return(&rest.Response{StatusCode: 202}, nil)

	mailer := &Mailer{Client: sender, FromAddress: "no-reply@example.com", FromName: "Benefits", RedeemURL: "https://app.example.com/redeem"}
	require.NoError(t, mailer.SendInvitation(context.Background(), testCode(), "Acme"))
	sender.AssertExpectations(t)
}

func TestMailer_SendInvitationFailures(t *testing.T) {
	tests := []struct {
		name string
		resp *rest.Response
		err  error
	}{
		{"transport error", nil, errors.New("mocked-error")},
		{"rejected", &rest.Response{StatusCode: 400, Body: "bad request"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			sender.On("SendWithContext", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			mailer := &Mailer{Client: sender}
			assert.Error(t, mailer.SendInvitation(context.Background(), testCode(), ""))
		})
	}
}

func TestMailer_SkipsCodesWithoutEmail(t *testing.T) {
	sender := &mockSender{}
	mailer := &Mailer{Client: sender}

	code := testCode()
	code.Email = ""
	assert.NoError(t, mailer.SendInvitation(context.Background(), code, "Acme"))
	sender.AssertNotCalled(t, "SendWithContext", mock.Anything, mock.Anything)
}

func TestNewMailer_DisabledWithoutKey(t *testing.T) {
	assert.Nil(t, NewMailer(&config.Config{}))
	assert.NotNil(t, NewMailer(&config.Config{SendgridAPIKey: "SG.test"}))
}
