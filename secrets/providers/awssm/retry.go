package awssm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
)

// retryer applies exponential backoff with ±25% jitter to throttling
// errors.
type retryer struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

var _ aws.Retryer = (*retryer)(nil)

func newRetryer() *retryer {
	return &retryer{
		maxAttempts: 5,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    10 * time.Second,
	}
}

var retryableCodes = map[string]bool{
	"ThrottlingException":         true,
	"TooManyRequestsException":    true,
	"InternalServiceError":        true,
	"ServiceUnavailableException": true,
	"RequestLimitExceeded":        true,
	"LimitExceededException":      true,
}

func (r *retryer) IsErrorRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return retryableCodes[apiErr.ErrorCode()]
	}
	return false
}

func (r *retryer) MaxAttempts() int {
	return r.maxAttempts
}

func (r *retryer) RetryDelay(attempt int, _ error) (time.Duration, error) {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseDelay

	if jitterRange := int64(float64(delay) * 0.25); jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange)
	}

	return min(max(delay, 0), r.maxDelay), nil
}

func (r *retryer) GetRetryToken(context.Context, error) (func(error) error, error) {
	return func(error) error { return nil }, nil
}

func (r *retryer) GetInitialToken() func(error) error {
	return func(error) error { return nil }
}
