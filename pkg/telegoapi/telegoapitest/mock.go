// Package telegoapitest provides a testify mock of telegoapi.BotAPI.
package telegoapitest

import (
	"context"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
)

// MockBot is a mock implementing the telegoapi.BotAPI interface
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) ForwardMessage(ctx context.Context, params *telego.ForwardMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

// ToChat matches request params addressed to the given chat id.
func ToChat(chatID int64) interface{} {
	return mock.MatchedBy(func(p interface{}) bool {
		switch params := p.(type) {
		case *telego.SendMediaGroupParams:
			return params.ChatID.ID == chatID
		case *telego.ForwardMessageParams:
			return params.ChatID.ID == chatID
		case *telego.DeleteMessageParams:
			return params.ChatID.ID == chatID
		case *telego.SendMessageParams:
			return params.ChatID.ID == chatID
		}
		return false
	})
}

// Messages builds a slice of sent messages with the given ids.
func Messages(ids ...int) []telego.Message {
	msgs := make([]telego.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, telego.Message{MessageID: id})
	}
	return msgs
}
