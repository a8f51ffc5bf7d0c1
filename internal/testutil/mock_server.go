//go:build !production

package testutil

import "github.com/stretchr/testify/mock"

// MockServer types.ServerInterface 的 mock
type MockServer struct {
	mock.Mock
}

func (m *MockServer) IsMaintenanceMode() bool {
	args := m.Called()
	return args.Bool(0)
}
