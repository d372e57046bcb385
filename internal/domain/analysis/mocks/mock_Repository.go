// Package mocks provides test doubles for the analysis repository.
package mocks

import (
	"context"

	analysis "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	mock "github.com/stretchr/testify/mock"
)

// MockRepository is a mock type for the Repository interface.
type MockRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, d
func (_m *MockRepository) Save(ctx context.Context, d *analysis.Document) (string, error) {
	ret := _m.Called(ctx, d)

	if len(ret) == 0 {
		panic("no return value specified for Save")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, *analysis.Document) (string, error)); ok {
		return rf(ctx, d)
	}
	r0 = ret.Get(0).(string)
	r1 = ret.Error(1)

	return r0, r1
}

// ListByElection provides a mock function with given fields: ctx, electionID, limit
func (_m *MockRepository) ListByElection(ctx context.Context, electionID string, limit int) ([]*analysis.Document, error) {
	ret := _m.Called(ctx, electionID, limit)

	if len(ret) == 0 {
		panic("no return value specified for ListByElection")
	}

	var r0 []*analysis.Document
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*analysis.Document)
	}

	return r0, ret.Error(1)
}

// NewMockRepository creates a new instance of MockRepository. It also
// registers a testing interface on the mock and a cleanup function to assert
// the mocks expectations.
func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
