package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: something odd" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryGeneral},
		{"plain", errors.New("something broke"), CategoryGeneral},
		{"memory content", errors.New("runtime: out of memory"), CategoryMemory},
		{"timeout content", errors.New("read tcp: i/o timeout"), CategoryTimeout},
		{"network refused", errors.New("dial tcp 127.0.0.1:80: connect: connection refused"), CategoryNetwork},
		{"network dns", errors.New("lookup example.invalid: no such host"), CategoryNetwork},
		{"rate limited upstream", errors.New("bad status: 429 Too Many Requests"), CategoryNetwork},
		{"permission content", errors.New("open /root/x: permission denied"), CategoryPermissions},
		{"http forbidden", errors.New("bad status: 403 Forbidden"), CategoryPermissions},
		{"not found content", errors.New("bad status: 404 Not Found"), CategoryNotFound},
		{"corrupt content", errors.New("invalid pdf header"), CategoryCorruptData},
		{"deadline kind", fmt.Errorf("fetch: %w", context.DeadlineExceeded), CategoryTimeout},
		{"os deadline kind", os.ErrDeadlineExceeded, CategoryTimeout},
		{"net timeout kind", fmt.Errorf("wrapped: %w", timeoutErr{}), CategoryTimeout},
		{"oom kind", fmt.Errorf("chunk buffer: %w", ErrOutOfMemory), CategoryMemory},
		{"not exist kind", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, CategoryNotFound},
		{"permission kind", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, CategoryPermissions},
		{"kind overrides content", fmt.Errorf("network share gone: %w", fs.ErrNotExist), CategoryNotFound},
		{"cancelled is general", context.Canceled, CategoryGeneral},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.want.Retryable(), got.Retryable)
			assert.NotEmpty(t, got.Strategy)
		})
	}
}

func TestCategoryRetryable(t *testing.T) {
	retryable := []Category{CategoryMemory, CategoryTimeout, CategoryNetwork}
	terminal := []Category{CategoryPermissions, CategoryNotFound, CategoryCorruptData, CategoryGeneral}

	for _, c := range retryable {
		assert.True(t, c.Retryable(), c)
	}
	for _, c := range terminal {
		assert.False(t, c.Retryable(), c)
	}
	assert.False(t, IsRetryable(nil))
}
