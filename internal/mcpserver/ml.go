package mcpserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/mlrunner"
	"github.com/datastack-mcp/datastack-go/internal/observability"
)

// MLDeps bundles the job manager and scheduler behind the ML tools.
type MLDeps struct {
	Jobs      *mlrunner.Jobs
	Scheduler *mlrunner.Scheduler
	Metrics   *observability.Metrics
}

// detectionMethods are the anomaly detectors detect_anomalies.py accepts.
var detectionMethods = map[string]bool{
	"isolation_forest":     true,
	"one_class_svm":        true,
	"local_outlier_factor": true,
}

// RegisterMLTools registers the script job and schedule tools.
func RegisterMLTools(server *mcp.Server, deps MLDeps) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_detection",
			Description: "Start an anomaly detection job over the given records, returning a job id",
		},
		instrumented(deps.Metrics, "run_detection", runDetectionHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "train_model",
			Description: "Start a model training job over the given records, returning a job id",
		},
		instrumented(deps.Metrics, "train_model", trainModelHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_prediction",
			Description: "Start a prediction job using a previously trained model, returning a job id",
		},
		instrumented(deps.Metrics, "run_prediction", runPredictionHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_job_status",
			Description: "Get the current state of a job",
		},
		instrumented(deps.Metrics, "get_job_status", getJobStatusHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_job_result",
			Description: "Get the result JSON of a succeeded job",
		},
		instrumented(deps.Metrics, "get_job_result", getJobResultHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cancel_job",
			Description: "Cancel a running job",
		},
		instrumented(deps.Metrics, "cancel_job", cancelJobHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_jobs",
			Description: "List all tracked jobs and their states",
		},
		instrumented(deps.Metrics, "list_jobs", listJobsHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "schedule_job",
			Description: "Run a script on a recurring cron schedule",
		},
		instrumented(deps.Metrics, "schedule_job", scheduleJobHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "unschedule_job",
			Description: "Remove a recurring schedule",
		},
		instrumented(deps.Metrics, "unschedule_job", unscheduleJobHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_schedules",
			Description: "List the registered recurring schedules",
		},
		instrumented(deps.Metrics, "list_schedules", listSchedulesHandler(deps)),
	)
}

type runDetectionInput struct {
	// Data is the list of records to score, passed to the script as its
	// input file.
	Data any `json:"data"`

	// Method selects the detector. Defaults to isolation_forest.
	Method string `json:"method,omitempty"`

	// Contamination is the expected anomaly fraction, in (0, 0.5].
	Contamination float64 `json:"contamination,omitempty"`

	// Features restricts scoring to the named numeric fields.
	Features []string `json:"features,omitempty"`
}

func runDetectionHandler(deps MLDeps) mcp.ToolHandlerFor[runDetectionInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input runDetectionInput) (*mcp.CallToolResult, any, error) {
		if input.Data == nil {
			return errorResult("data is required"), nil, nil
		}
		if input.Method != "" && !detectionMethods[input.Method] {
			return errorResult(fmt.Sprintf("unknown method %q, want isolation_forest, one_class_svm, or local_outlier_factor", input.Method)), nil, nil
		}
		if input.Contamination != 0 && (input.Contamination <= 0 || input.Contamination > 0.5) {
			return errorResult(fmt.Sprintf("contamination must be in (0, 0.5], got %v", input.Contamination)), nil, nil
		}

		flags := map[string]string{}
		if input.Method != "" {
			flags["method"] = input.Method
		}
		if input.Contamination != 0 {
			flags["contamination"] = strconv.FormatFloat(input.Contamination, 'f', -1, 64)
		}
		if len(input.Features) > 0 {
			flags["features"] = strings.Join(input.Features, ",")
		}

		job := deps.Jobs.Submit(ctx, "detect_anomalies", input.Data, flags)
		return textResult(job)
	}
}

type trainModelInput struct {
	Data any `json:"data"`

	// ModelType names the estimator the training script should fit.
	ModelType string `json:"model_type,omitempty"`

	// Flags are passed to the script verbatim as --key value pairs.
	Flags map[string]string `json:"flags,omitempty"`
}

func trainModelHandler(deps MLDeps) mcp.ToolHandlerFor[trainModelInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input trainModelInput) (*mcp.CallToolResult, any, error) {
		if input.Data == nil {
			return errorResult("data is required"), nil, nil
		}

		flags := map[string]string{}
		for k, v := range input.Flags {
			flags[k] = v
		}
		if input.ModelType != "" {
			flags["model-type"] = input.ModelType
		}

		job := deps.Jobs.Submit(ctx, "train_model", input.Data, flags)
		return textResult(job)
	}
}

type runPredictionInput struct {
	Data any `json:"data"`

	// ModelPath points at a model file produced by train_model.
	ModelPath string `json:"model_path"`
}

func runPredictionHandler(deps MLDeps) mcp.ToolHandlerFor[runPredictionInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input runPredictionInput) (*mcp.CallToolResult, any, error) {
		if input.Data == nil {
			return errorResult("data is required"), nil, nil
		}
		if input.ModelPath == "" {
			return errorResult("model_path is required"), nil, nil
		}

		job := deps.Jobs.Submit(ctx, "predict", input.Data, map[string]string{
			"model": input.ModelPath,
		})
		return textResult(job)
	}
}

type jobIDInput struct {
	JobID string `json:"job_id"`
}

func getJobStatusHandler(deps MLDeps) mcp.ToolHandlerFor[jobIDInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input jobIDInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return errorResult("job_id is required"), nil, nil
		}

		job, err := deps.Jobs.Get(input.JobID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(job)
	}
}

func getJobResultHandler(deps MLDeps) mcp.ToolHandlerFor[jobIDInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input jobIDInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return errorResult("job_id is required"), nil, nil
		}

		result, err := deps.Jobs.Result(input.JobID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(map[string]any{
			"job_id": input.JobID,
			"result": result,
		})
	}
}

func cancelJobHandler(deps MLDeps) mcp.ToolHandlerFor[jobIDInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input jobIDInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return errorResult("job_id is required"), nil, nil
		}

		if err := deps.Jobs.Cancel(input.JobID); err != nil {
			return errorResult(err.Error()), nil, nil
		}
		job, err := deps.Jobs.Get(input.JobID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(job)
	}
}

func listJobsHandler(deps MLDeps) mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		jobs := deps.Jobs.List()
		return textResult(map[string]any{
			"count": len(jobs),
			"jobs":  jobs,
		})
	}
}

type scheduleJobInput struct {
	// Script names the Python script to run on each tick.
	Script string `json:"script"`

	// Cron is a standard five-field cron expression, or an @every
	// interval like "@every 1h".
	Cron string `json:"cron"`

	Data  any               `json:"data,omitempty"`
	Flags map[string]string `json:"flags,omitempty"`
}

func scheduleJobHandler(deps MLDeps) mcp.ToolHandlerFor[scheduleJobInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input scheduleJobInput) (*mcp.CallToolResult, any, error) {
		if input.Script == "" {
			return errorResult("script is required"), nil, nil
		}
		if input.Cron == "" {
			return errorResult("cron is required"), nil, nil
		}

		sched, err := deps.Scheduler.Add(input.Cron, input.Script, input.Data, input.Flags)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(sched)
	}
}

type scheduleIDInput struct {
	ScheduleID string `json:"schedule_id"`
}

func unscheduleJobHandler(deps MLDeps) mcp.ToolHandlerFor[scheduleIDInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input scheduleIDInput) (*mcp.CallToolResult, any, error) {
		if input.ScheduleID == "" {
			return errorResult("schedule_id is required"), nil, nil
		}

		if err := deps.Scheduler.Remove(input.ScheduleID); err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(map[string]string{"removed": input.ScheduleID})
	}
}

func listSchedulesHandler(deps MLDeps) mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		schedules := deps.Scheduler.List()
		return textResult(map[string]any{
			"count":     len(schedules),
			"schedules": schedules,
		})
	}
}
