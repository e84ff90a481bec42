package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorKinds(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"data source", DataSource("fetch trades", cause), ErrDataSource, KindDataSource},
		{"input shape", InputShape("build table", cause), ErrInputShape, KindInputShape},
		{"destination", Destination("write csv", cause), ErrDestination, KindDestination},
		{"upload", Upload("put object", cause), ErrUpload, KindUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.True(t, errors.Is(tt.err, cause), "cause should stay in the chain")
			assert.Equal(t, tt.kind, KindOf(tt.err))

			for _, other := range []error{ErrDataSource, ErrInputShape, ErrDestination, ErrUpload} {
				if other == tt.sentinel {
					continue
				}
				assert.False(t, errors.Is(tt.err, other))
			}
		})
	}
}

func TestPipelineErrorMessage(t *testing.T) {
	err := DataSource("GET https://example.com/BTC-BRL/trades", fmt.Errorf("status 503"))
	assert.Equal(t, "data_source error: GET https://example.com/BTC-BRL/trades: status 503", err.Error())

	err = Upload("", fmt.Errorf("denied"))
	assert.Equal(t, "upload error: denied", err.Error())

	assert.Equal(t, "destination error", ErrDestination.Error())
}

func TestKindOfWrapped(t *testing.T) {
	inner := Destination("rename", fs.ErrPermission)
	wrapped := fmt.Errorf("pipeline run failed: %w", inner)

	assert.Equal(t, KindDestination, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))

	var pe *PipelineError
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "rename", pe.Op)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Cause
	}{
		{"nil", nil, CauseUnknown},
		{"canceled", fmt.Errorf("request: %w", context.Canceled), CauseCanceled},
		{"deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), CauseTimeout},
		{"client timeout", fmt.Errorf("Client.Timeout exceeded while awaiting headers"), CauseTimeout},
		{"permission", fmt.Errorf("open: %w", fs.ErrPermission), CausePermission},
		{"missing file", fmt.Errorf("stat: %w", fs.ErrNotExist), CauseNotFound},
		{"bad access key", fmt.Errorf("api error InvalidAccessKeyId: The AWS Access Key Id you provided does not exist"), CauseAuthentication},
		{"forbidden", fmt.Errorf("StatusCode: 403, Forbidden"), CauseAuthentication},
		{"missing bucket", fmt.Errorf("api error NoSuchBucket: The specified bucket does not exist"), CauseNotFound},
		{"connection refused", fmt.Errorf("dial tcp 127.0.0.1:1: connect: connection refused"), CauseNetwork},
		{"dns", fmt.Errorf("dial tcp: lookup nowhere.invalid: no such host"), CauseNetwork},
		{"server error", fmt.Errorf("server error 502: bad gateway"), CauseServerError},
		{"malformed json", fmt.Errorf("invalid character 'x' looking for beginning of value"), CauseMalformed},
		{"other", fmt.Errorf("something went wrong"), CauseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}
