// Package mocks provides testify mocks of the tao interfaces.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// Engine is a mock type for the Engine type
type Engine struct {
	mock.Mock
}

// Cmd provides a mock function with given fields: ctx, command
func (_m *Engine) Cmd(ctx context.Context, command string) ([]string, error) {
	ret := _m.Called(ctx, command)

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context, string) []string); ok {
		r0 = rf(ctx, command)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, command)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// LatListReal provides a mock function with given fields: ctx, elements, who, flags
func (_m *Engine) LatListReal(ctx context.Context, elements string, who string, flags ...string) ([]float64, error) {
	_va := make([]interface{}, len(flags))
	for _i := range flags {
		_va[_i] = flags[_i]
	}
	var _ca []interface{}
	_ca = append(_ca, ctx, elements, who)
	_ca = append(_ca, _va...)
	ret := _m.Called(_ca...)

	var r0 []float64
	if rf, ok := ret.Get(0).(func(context.Context, string, string, ...string) []float64); ok {
		r0 = rf(ctx, elements, who, flags...)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]float64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string, ...string) error); ok {
		r1 = rf(ctx, elements, who, flags...)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// LatListString provides a mock function with given fields: ctx, elements, who, flags
func (_m *Engine) LatListString(ctx context.Context, elements string, who string, flags ...string) ([]string, error) {
	_va := make([]interface{}, len(flags))
	for _i := range flags {
		_va[_i] = flags[_i]
	}
	var _ca []interface{}
	_ca = append(_ca, ctx, elements, who)
	_ca = append(_ca, _va...)
	ret := _m.Called(_ca...)

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context, string, string, ...string) []string); ok {
		r0 = rf(ctx, elements, who, flags...)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string, ...string) error); ok {
		r1 = rf(ctx, elements, who, flags...)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewEngine creates a new instance of Engine. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewEngine(t interface {
	mock.TestingT
	Cleanup(func())
}) *Engine {
	m := &Engine{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
