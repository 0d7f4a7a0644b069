package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Catalog models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Positional hint for vector literal syntax errors.
	// example: error occur at pos (    3): "[1,,2]"
	Hint string `json:"hint,omitempty"`
}

// ParseRequest is the body of POST /vectors/parse.
type ParseRequest struct {
	// Vector literal.
	// example: [1,2,3,4]{2,2}
	Literal string `json:"literal" example:"[1,2,3,4]{2,2}"`
}

// BinaryRequest is the body of POST /vectors/add, /vectors/sub and /vectors/equal.
type BinaryRequest struct {
	// Left operand literal.
	// example: [1,2]
	Left string `json:"left" example:"[1,2]"`
	// Right operand literal.
	// example: [3,4]
	Right string `json:"right" example:"[3,4]"`
}

// EqualResponse is returned by POST /vectors/equal.
type EqualResponse struct {
	// example: true
	Equal bool `json:"equal" example:"true"`
}

// LoadResponse is returned by POST /models/{name}/load.
type LoadResponse struct {
	// example: iris-mlp
	Model string `json:"model" example:"iris-mlp"`
	// Resolved artifact path.
	// example: /srv/models/iris.safetensors
	Path string `json:"path" example:"/srv/models/iris.safetensors"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
}

// DeviceRequest is the body of POST /models/{name}/device.
type DeviceRequest struct {
	// Target device: cpu or gpu.
	// example: gpu
	Device string `json:"device" example:"gpu"`
}

// DeviceResponse reports whether the model now runs on the requested device.
type DeviceResponse struct {
	// example: true
	OK bool `json:"ok" example:"true"`
	// Device after the request.
	// example: gpu
	Device string `json:"device,omitempty" example:"gpu"`
}

// PredictRequest is the body of POST /models/{name}/predict.
type PredictRequest struct {
	// One vector literal per model input.
	// example: ["[5.1,3.5,1.4,0.2]"]
	Inputs []string `json:"inputs" example:"[5.1,3.5,1.4,0.2]"`
	// Extra arguments passed to pre/post-processing hooks.
	// example: ["setosa","versicolor","virginica"]
	Args []string `json:"args,omitempty"`
}

// PredictResponse carries one of a number, a string or a vector.
type PredictResponse struct {
	// numeric, text or vector.
	// example: numeric
	Kind string `json:"kind" example:"numeric"`
	// Set when kind is numeric.
	// example: 2
	Value *float64 `json:"value,omitempty" example:"2"`
	// Set when kind is text.
	Text string `json:"text,omitempty"`
	// Set when kind is vector.
	Vector *Vector `json:"vector,omitempty"`
}

// ModelStatus summarizes a loaded model for /status.
type ModelStatus struct {
	// Artifact path (cache key).
	// example: /srv/models/iris.safetensors
	Path string `json:"path" example:"/srv/models/iris.safetensors"`
	// Model name that triggered the load.
	// example: iris-mlp
	Model string `json:"model,omitempty" example:"iris-mlp"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Load time (unix seconds).
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
	// Operation id of the load.
	// example: 3f1c2b9e-6a55-4d5c-9b43-2f0f6f6a1c10
	LoadOpID string `json:"load_op_id" example:"3f1c2b9e-6a55-4d5c-9b43-2f0f6f6a1c10"`
	// Successful forward passes served.
	// example: 42
	Inferences uint64 `json:"inferences" example:"42"`
	// Registered hooks.
	HasPreprocess  bool `json:"has_preprocess"`
	HasNumericHook bool `json:"has_numeric_hook"`
	HasTextHook    bool `json:"has_text_hook"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded models.
	Models []ModelStatus `json:"models"`
	// Overall manager state (ready or closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Whether the runtime can place models on a GPU.
	// example: false
	GPUAvailable bool `json:"gpu_available" example:"false"`
	// Total number of native model loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Total number of successful forward passes.
	// example: 120
	InferencesTotal uint64 `json:"inferences_total" example:"120"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Host memory, filled in by the HTTP layer.
	// example: 16384
	HostMemTotalMB uint64 `json:"host_mem_total_mb,omitempty" example:"16384"`
	// example: 41.5
	HostMemUsedPercent float64 `json:"host_mem_used_percent,omitempty" example:"41.5"`
}
