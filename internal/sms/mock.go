package sms

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, phoneNumbers []string, text string) error {
	args := m.Called(ctx, phoneNumbers, text)
	return args.Error(0)
}
