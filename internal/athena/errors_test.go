package athena

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: opGetStatus, ExecutionID: "exec-1", Err: errors.New("was not found")}
	assert.Equal(t, "athena: get status exec-1: was not found", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransport(err))

	bare := &Error{Kind: KindSubmission, Op: opSubmit, Err: errors.New("query text is empty")}
	assert.Equal(t, "athena: submit: query text is empty", bare.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := &athtypes.TooManyRequestsException{Message: aws.String("Too many requests")}
	err := wrapRemote(opGetStatus, "exec-1", cause)

	var got *athtypes.TooManyRequestsException
	assert.True(t, errors.As(err, &got))
}

func TestClassify_ThrottleDependsOnOperation(t *testing.T) {
	throttle := &athtypes.TooManyRequestsException{Message: aws.String("Too many requests")}
	// Quota rejections at submission time are submission failures; during a
	// status poll the same throttle is a retryable transport condition.
	assert.Equal(t, KindSubmission, classify(opSubmit, throttle))
	assert.Equal(t, KindTransport, classify(opGetStatus, throttle))
}

func TestClassify_WrappedRemoteError(t *testing.T) {
	err := fmt.Errorf("operation error Athena: GetQueryExecution: %w",
		&athtypes.InvalidRequestException{Message: aws.String("QueryExecution abc was not found")})
	assert.Equal(t, KindNotFound, classify(opGetStatus, err))
}

func TestClassify_ResourceNotFound(t *testing.T) {
	err := &athtypes.ResourceNotFoundException{Message: aws.String("workgroup primary is missing")}
	assert.Equal(t, KindNotFound, classify(opSubmit, err))
}

func TestClassify_PlainErrorIsTransport(t *testing.T) {
	assert.Equal(t, KindTransport, classify(opGetResults, errors.New("connection reset by peer")))
}
