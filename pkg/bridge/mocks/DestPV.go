// Package mocks provides testify mocks of the bridge interfaces.
package mocks

import (
	mock "github.com/stretchr/testify/mock"
)

// DestPV is a mock type for the DestPV type
type DestPV struct {
	mock.Mock
}

// Connected provides a mock function with given fields:
func (_m *DestPV) Connected() bool {
	ret := _m.Called()

	var r0 bool
	if rf, ok := ret.Get(0).(func() bool); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(bool)
	}

	return r0
}

// Name provides a mock function with given fields:
func (_m *DestPV) Name() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Put provides a mock function with given fields: value
func (_m *DestPV) Put(value interface{}) error {
	ret := _m.Called(value)

	var r0 error
	if rf, ok := ret.Get(0).(func(interface{}) error); ok {
		r0 = rf(value)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewDestPV creates a new instance of DestPV. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewDestPV(t interface {
	mock.TestingT
	Cleanup(func())
}) *DestPV {
	m := &DestPV{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
