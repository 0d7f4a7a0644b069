package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

// maxBodyBytes caps JSON request bodies on the vector and model routes.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes sets the JSON body cap. Non-positive values restore 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// predictTimeout bounds /load and /predict. Zero leaves only the client
// and shutdown as deadlines.
var predictTimeout time.Duration

// SetPredictTimeoutSeconds sets predictTimeout; negative values disable it.
func SetPredictTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	predictTimeout = time.Duration(sec) * time.Second
}

// CORS is opt-in; NewMux adds no CORS middleware while corsEnabled is false.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
