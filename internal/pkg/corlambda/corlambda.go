// Package corlambda invokes task handlers deployed as AWS Lambda functions.
package corlambda

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
)

// LambdaClient wraps the AWS Lambda API and provides functions for
// invoking task handlers.
type LambdaClient struct {
	Client lambdaiface.LambdaAPI
}

// NewLambdaClient initializes a new LambdaClient from the shared AWS config.
func NewLambdaClient() *LambdaClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &LambdaClient{
		Client: lambda.New(sess),
	}
}

// FunctionError is returned when the function ran but its handler failed.
type FunctionError struct {
	Function string
	Kind     string
	Payload  []byte
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("lambda function %s failed (%s): %s", e.Function, e.Kind, e.Payload)
}

// Invoke synchronously invokes function with payload and returns the
// function's response payload.
func (l *LambdaClient) Invoke(ctx context.Context, function string, payload []byte) ([]byte, error) {
	output, err := l.Client.InvokeWithContext(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: aws.String(lambda.InvocationTypeRequestResponse),
		Payload:        payload,
	})
	if err != nil {
		return nil, err
	}
	if output.FunctionError != nil {
		return nil, &FunctionError{
			Function: function,
			Kind:     aws.StringValue(output.FunctionError),
			Payload:  output.Payload,
		}
	}
	return output.Payload, nil
}
