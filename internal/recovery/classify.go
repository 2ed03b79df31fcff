package recovery

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"
)

// ErrOutOfMemory marks failures caused by memory exhaustion (for example a buffer allocation refused by a
// work function's own limits).
var ErrOutOfMemory = errors.New("out of memory")

// Category is the failure class of an error.
type Category string

const (
	CategoryMemory      Category = "memory"
	CategoryTimeout     Category = "timeout"
	CategoryNetwork     Category = "network"
	CategoryPermissions Category = "permissions"
	CategoryNotFound    Category = "not_found"
	CategoryCorruptData Category = "corrupt_data"
	CategoryGeneral     Category = "general"
)

func (c Category) String() string { return string(c) }

// Retryable reports whether failures in c are transient.
func (c Category) Retryable() bool {
	return c == CategoryMemory || c == CategoryTimeout || c == CategoryNetwork
}

// Classification is the result of [Classify].
type Classification struct {
	Category  Category `json:"category"`
	Retryable bool     `json:"retryable"`
	Strategy  string   `json:"recovery_strategy"`
}

var strategies = map[Category]string{
	CategoryMemory:      "Reduce batch or chunk size and retry",
	CategoryTimeout:     "Retry with a longer timeout",
	CategoryNetwork:     "Check connectivity and retry",
	CategoryPermissions: "Check file and directory permissions",
	CategoryNotFound:    "Verify the path or URL exists",
	CategoryCorruptData: "Re-download or replace the source file",
	CategoryGeneral:     "Inspect the error message and logs",
}

type contentRule struct {
	category Category
	needles  []string
}

// contentRules are evaluated in order; the first rule with a matching needle wins.
var contentRules = []contentRule{
	{CategoryMemory, []string{"out of memory", "cannot allocate memory", "memory limit", "memoryerror"}},
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryNetwork, []string{
		"connection refused", "connection reset", "connection aborted", "broken pipe", "no such host",
		"network is unreachable", "temporary failure", "too many requests", "bad gateway",
		"service unavailable", "unexpected eof", "tls handshake", "network",
	}},
	{CategoryPermissions, []string{"permission denied", "access denied", "operation not permitted", "forbidden", "unauthorized"}},
	{CategoryNotFound, []string{"not found", "no such file", "does not exist", "404"}},
	{CategoryCorruptData, []string{"corrupt", "malformed", "invalid pdf", "checksum", "unexpected end of", "invalid character"}},
}

// Classify returns the category, retryability and recovery hint for err. A nil error is general.
func Classify(err error) Classification {
	category := CategoryGeneral
	if err != nil {
		category = classifyContent(err.Error())
		if kind, ok := classifyKind(err); ok {
			category = kind
		}
	}
	return Classification{Category: category, Retryable: category.Retryable(), Strategy: strategies[category]}
}

// IsRetryable reports whether err classifies as transient.
func IsRetryable(err error) bool {
	return err != nil && Classify(err).Retryable
}

func classifyContent(msg string) Category {
	msg = strings.ToLower(msg)
	for _, rule := range contentRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}

func classifyKind(err error) (Category, bool) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return CategoryTimeout, true
	case errors.As(err, &netErr) && netErr.Timeout():
		return CategoryTimeout, true
	case errors.Is(err, ErrOutOfMemory):
		return CategoryMemory, true
	case errors.Is(err, fs.ErrNotExist):
		return CategoryNotFound, true
	case errors.Is(err, fs.ErrPermission):
		return CategoryPermissions, true
	}
	return "", false
}
