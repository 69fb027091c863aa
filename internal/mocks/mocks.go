// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/nbwarden/internal/health"
	"github.com/xkilldash9x/nbwarden/internal/monitor"
	"github.com/xkilldash9x/nbwarden/internal/recovery"
	"github.com/xkilldash9x/nbwarden/internal/service"
)

var (
	_ monitor.Checker        = (*MockChecker)(nil)
	_ monitor.Recoverer      = (*MockRecoverer)(nil)
	_ monitor.Releaser       = (*MockReleaser)(nil)
	_ recovery.Page          = (*MockPage)(nil)
	_ recovery.Screenshotter = (*MockPage)(nil)
	_ health.PageReader      = (*MockPage)(nil)
	_ service.Session        = (*MockSession)(nil)
)

// -- Monitor Mocks --

// MockChecker mocks monitor.Checker.
type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) Check(ctx context.Context) (health.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(health.Status), args.Error(1)
}

// MockRecoverer mocks monitor.Recoverer.
type MockRecoverer struct {
	mock.Mock
}

func (m *MockRecoverer) Recover(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockReleaser mocks monitor.Releaser.
type MockReleaser struct {
	mock.Mock
}

func (m *MockReleaser) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Browser Page Mock --

// MockPage mocks the browser page surface used by health checks and recovery.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockPage) InnerText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	args := m.Called(ctx, selector, timeout)
	return args.Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	args := m.Called(ctx, selector, timeout)
	return args.Error(0)
}

func (m *MockPage) SetCellSource(ctx context.Context, selector, source string) error {
	args := m.Called(ctx, selector, source)
	return args.Error(0)
}

func (m *MockPage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	var png []byte
	if v := args.Get(0); v != nil {
		png = v.([]byte)
	}
	return png, args.Error(1)
}

// MockSession is a MockPage that can also be closed.
type MockSession struct {
	MockPage
}

func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
