package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"permission", "NotAllowedError: Permission denied by system", ErrPermissionDenied},
		{"not_found", "failed to find the best driver that fits the constraints", ErrDeviceNotFound},
		{"busy", "NotReadableError: device in use", ErrDeviceBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(errors.New(tt.in)), tt.want)
		})
	}

	opaque := errors.New("something else entirely")
	assert.Equal(t, opaque, classify(opaque))
	assert.NoError(t, classify(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t,
		"Camera/microphone is already in use by another application.",
		UserMessage(classify(errors.New("device busy"))))
	assert.Equal(t,
		"Failed to access camera/microphone",
		UserMessage(errors.New("weird")))
}
