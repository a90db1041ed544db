package services

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// argCapture records every value matched against it, letting a test
// assert on what the service actually wrote.
type argCapture struct {
	into *[]string
}

func (c argCapture) Match(v driver.Value) bool {
	*c.into = append(*c.into, fmt.Sprint(v))
	return true
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, to, amount)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Mint(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, to, amount)
	return args.String(0), args.Error(1)
}
