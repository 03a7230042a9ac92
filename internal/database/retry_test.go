package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestRetry_SuccessIsSingleCall(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SecondAttemptRecovers(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_PersistentFailureStopsAfterTwo(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return errors.New("still down")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return gorm.ErrRecordNotFound
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, 1, calls)
}
