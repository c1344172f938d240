package zonecount

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ease-lab/zonecount/internal/pkg/corlambda"
)

var (
	lambdaDriver *Driver

	// taskMut serializes the tasks a warm worker handles, since they share
	// the driver's job.
	taskMut sync.Mutex
)

// runningInLambda infers if the program is running in AWS lambda via inspection of the environment
func runningInLambda() bool {
	expectedEnvVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

func handleRequest(ctx context.Context, task task) (string, error) {
	return runTask(ctx, lambdaDriver, task)
}

// runTask executes task in this process on behalf of a remote driver.
func runTask(ctx context.Context, driver *Driver, task task) (string, error) {
	if driver == nil || task.JobNumber < 0 || task.JobNumber >= len(driver.jobs) {
		return "", fmt.Errorf("unknown job %d", task.JobNumber)
	}

	taskMut.Lock()
	defer taskMut.Unlock()

	currentJob := driver.jobs[task.JobNumber]
	task.apply(currentJob)

	var err error
	switch task.Phase {
	case MapPhase:
		err = currentJob.runMapper(ctx, task.BinID, task.Splits)
	case ReducePhase:
		err = currentJob.runReducer(ctx, task.BinID)
	default:
		return "", fmt.Errorf("unknown phase: %d", task.Phase)
	}
	result := prepareResult(currentJob)
	if err != nil {
		return "", err
	}
	return result, nil
}

type lambdaExecutor struct {
	*corlambda.LambdaClient
	functionName string
}

func newLambdaExecutor(functionName string) *lambdaExecutor {
	return &lambdaExecutor{
		LambdaClient: corlambda.NewLambdaClient(),
		functionName: functionName,
	}
}

func (l *lambdaExecutor) RunMapper(ctx context.Context, job *Job, jobNumber int, binID uint, inputSplits []inputSplit) error {
	return l.run(ctx, job, newTask(job, jobNumber, MapPhase, binID, inputSplits))
}

func (l *lambdaExecutor) RunReducer(ctx context.Context, job *Job, jobNumber int, binID uint) error {
	return l.run(ctx, job, newTask(job, jobNumber, ReducePhase, binID, nil))
}

func (l *lambdaExecutor) run(ctx context.Context, job *Job, t task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	resultPayload, err := l.Invoke(ctx, l.functionName, payload)
	if err != nil {
		return err
	}

	// The handler returns the result as a JSON string
	var result string
	if err := json.Unmarshal(resultPayload, &result); err != nil {
		return fmt.Errorf("decoding %s task result: %w", t.Phase, err)
	}
	loadTaskResult([]byte(result)).collect(job)
	return nil
}
