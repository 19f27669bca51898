package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// ObjectStorage mocks model.ObjectStorage.
type ObjectStorage struct {
	mock.Mock
}

func NewObjectStorage(t mock.TestingT) *ObjectStorage {
	m := &ObjectStorage{}
	m.Mock.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *ObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, reader, size, contentType)
	return args.Error(0)
}
