package types

// Model is a catalog entry as reported by GET /models.
type Model struct {
	// Catalog name of the model.
	// example: iris-mlp
	Name string `json:"name" example:"iris-mlp"`
	// Resolved artifact path (after base-model and {model_path} resolution).
	// example: /srv/models/iris.safetensors
	Path string `json:"path" example:"/srv/models/iris.safetensors"`
	// Base model whose artifact this model reuses, if any.
	// example: iris-base
	BaseModel string `json:"base_model,omitempty" example:"iris-base"`
	// Built-in preprocess hook name.
	// example: flatten
	Preprocess string `json:"preprocess,omitempty" example:"flatten"`
	// Built-in postprocess hook name.
	// example: argmax
	Postprocess string `json:"postprocess,omitempty" example:"argmax"`
	// Free-form description.
	Description string `json:"description,omitempty"`
	// Whether the artifact is currently loaded.
	// example: true
	Loaded bool `json:"loaded" example:"true"`
	// Device of the loaded module (cpu or gpu); empty when not loaded.
	// example: cpu
	Device string `json:"device,omitempty" example:"cpu"`
}

// Vector is the JSON view of a tensor vector.
type Vector struct {
	// Untruncated literal; parses back to the same value.
	// example: [1,2,3,4]{2,2}
	Literal string `json:"vector" example:"[1,2,3,4]{2,2}"`
	// Number of elements.
	// example: 4
	Dim int `json:"dim" example:"4"`
	// Declared shape; [0] marks a scalar.
	// example: [2,2]
	Shape []int32 `json:"shape" example:"2,2"`
	// Elements in row-major order. Non-finite values are null.
	Data []*float32 `json:"data"`
}
