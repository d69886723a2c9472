package presenter

import (
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

// MockPresenter is a testify mock of tictactoe.Presenter.
type MockPresenter struct {
	mock.Mock
}

// NewMockPresenter creates a mock whose board, turn and status callbacks are optional.
// Expectations are asserted when the test ends.
func NewMockPresenter(t *testing.T) *MockPresenter {
	t.Helper()

	m := &MockPresenter{}
	m.Test(t)

	m.On("BoardChanged", mock.Anything).Maybe()
	m.On("TurnChanged", mock.Anything).Maybe()
	m.On("WaitingStatus", mock.Anything).Maybe()

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockPresenter) BoardChanged(board entity.Board) {
	m.Called(board)
}

func (m *MockPresenter) TurnChanged(mark entity.Mark) {
	m.Called(mark)
}

func (m *MockPresenter) OutcomeFinal(outcome entity.Outcome) {
	m.Called(outcome)
}

func (m *MockPresenter) WaitingStatus(message string) {
	m.Called(message)
}
