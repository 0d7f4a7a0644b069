package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tensord/internal/engine"
	"tensord/internal/hooks"
	"tensord/internal/manager"
	"tensord/pkg/tensorvec"
	"tensord/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager satisfies it.
type Service interface {
	ListModels(ctx context.Context) ([]types.Model, error)
	Status() types.StatusResponse
	Ready() bool
	ResolvePath(ctx context.Context, modelName string) (string, string, error)
	LoadModel(ctx context.Context, modelName string) (string, error)
	SetDevice(path string, d engine.Device) (bool, error)
	Device(path string) (engine.Device, bool)
	Infer(ctx context.Context, modelName string, vectors []tensorvec.Vector, args hooks.Args) (manager.Result, error)
}

var _ Service = (*manager.Manager)(nil)

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("closed"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status()
		fillHostMemory(&st)
		writeJSON(w, http.StatusOK, st)
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.ListModels(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Route("/vectors", func(r chi.Router) {
		r.Post("/parse", func(w http.ResponseWriter, r *http.Request) {
			var req types.ParseRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			v, err := tensorvec.Parse(req.Literal)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeVector(w, v)
		})
		r.Post("/add", binaryOp(tensorvec.Add))
		r.Post("/sub", binaryOp(tensorvec.Sub))
		r.Post("/equal", func(w http.ResponseWriter, r *http.Request) {
			a, b, ok := decodeOperands(w, r)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, types.EqualResponse{Equal: tensorvec.Equal(a, b)})
		})
		r.Post("/encode", func(w http.ResponseWriter, r *http.Request) {
			var req types.ParseRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			v, err := tensorvec.Parse(req.Literal)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			b, err := v.MarshalBinary()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(b)
		})
	})

	r.Route("/models/{name}", func(r chi.Router) {
		r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			lvl := requestLogLevel(r)
			start := time.Now()
			logStart(r, lvl, "load", name)
			ctx, cancel := requestContext(r)
			defer cancel()
			path, err := svc.LoadModel(ctx, name)
			if err != nil {
				status := writeServiceError(w, err)
				logEnd(r, lvl, "load", status, start, err)
				return
			}
			dev, _ := svc.Device(path)
			writeJSON(w, http.StatusOK, types.LoadResponse{Model: name, Path: path, Device: dev.String()})
			logEnd(r, lvl, "load", http.StatusOK, start, nil)
		})

		r.Post("/device", func(w http.ResponseWriter, r *http.Request) {
			var req types.DeviceRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			d, err := engine.ParseDevice(req.Device)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			path, _, err := svc.ResolvePath(r.Context(), chi.URLParam(r, "name"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			ok, err := svc.SetDevice(path, d)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			resp := types.DeviceResponse{OK: ok}
			if cur, loaded := svc.Device(path); loaded {
				resp.Device = cur.String()
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			var req types.PredictRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if len(req.Inputs) == 0 {
				writeJSONError(w, http.StatusBadRequest, "inputs are required")
				return
			}
			inputs, err := parseLiterals(req.Inputs)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			lvl := requestLogLevel(r)
			start := time.Now()
			logStart(r, lvl, "predict", name)
			ctx, cancel := requestContext(r)
			defer cancel()
			res, err := svc.Infer(ctx, name, inputs, hooks.Args(req.Args))
			if err != nil {
				// client went away or server is shutting down
				if requestAborted(r) {
					return
				}
				status := writeServiceError(w, err)
				logEnd(r, lvl, "predict", status, start, err)
				return
			}
			resp, err := predictResponse(res)
			if err != nil {
				status := writeServiceError(w, err)
				logEnd(r, lvl, "predict", status, start, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			logEnd(r, lvl, "predict", http.StatusOK, start, nil)
		})
	})

	MountSwagger(r)
	return r
}

func predictResponse(res manager.Result) (types.PredictResponse, error) {
	out := types.PredictResponse{Kind: string(res.Kind)}
	switch res.Kind {
	case manager.ResultNumeric:
		v := res.Numeric
		out.Value = &v
	case manager.ResultText:
		out.Text = res.Text
	case manager.ResultVector:
		view, err := VectorView(res.Vector)
		if err != nil {
			return out, err
		}
		out.Vector = &view
	default:
		return out, fmt.Errorf("unknown result kind %q", res.Kind)
	}
	return out, nil
}

func binaryOp(op func(a, b tensorvec.Vector) (tensorvec.Vector, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b, ok := decodeOperands(w, r)
		if !ok {
			return
		}
		v, err := op(a, b)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeVector(w, v)
	}
}

func decodeOperands(w http.ResponseWriter, r *http.Request) (tensorvec.Vector, tensorvec.Vector, bool) {
	var req types.BinaryRequest
	if !decodeJSON(w, r, &req) {
		return tensorvec.Vector{}, tensorvec.Vector{}, false
	}
	vs, err := parseLiterals([]string{req.Left, req.Right})
	if err != nil {
		writeServiceError(w, err)
		return tensorvec.Vector{}, tensorvec.Vector{}, false
	}
	return vs[0], vs[1], true
}

// decodeJSON enforces the content type and body limit, then decodes into
// dst. It writes the error response itself and reports whether to go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		// oversized bodies also land here; 400 avoids leaking the limit
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeVector(w http.ResponseWriter, v tensorvec.Vector) {
	view, err := VectorView(v)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && zlog != nil {
		zlog.Warn().Err(err).Msg("encode response")
	}
}
