package endpoints

import (
	"github.com/jackzampolin/reportsum/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Task endpoints
		&SubmitTaskEndpoint{},
		&UploadTaskEndpoint{},
		&ListTasksEndpoint{},
		&GetTaskEndpoint{},
		&CancelTaskEndpoint{},
		&TaskLLMCallsEndpoint{},

		// Batch endpoints
		&SubmitBatchEndpoint{},
		&BatchStatusEndpoint{},

		// Summary endpoints
		&ListSummariesEndpoint{},
		&GetSummaryEndpoint{},

		// Archive endpoints
		&ListArchiveEndpoint{},
		&GetArchiveEndpoint{},

		// LLM call history
		&GetLLMCallEndpoint{},
	}
}
