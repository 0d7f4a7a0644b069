// Package manager owns loaded models and runs inference over them. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor helpers, simple getters, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (loadedModel, Result, LayerPolicy).
//   - errors.go: error types and helpers (IsModelNotFound, IsIntegrity, IsRuntime, ...).
//   - resolve.go: catalog lookups mapping model names to artifact paths.
//   - load.go: at-most-once loading, checksum verification and parameter injection.
//   - device.go: CPU/GPU placement.
//   - hooks.go: per-model pre/post-processing registries and default registration.
//   - predict.go: forward passes with panic containment.
//   - infer.go: the composed load/bridge/preprocess/predict/postprocess pipeline.
//   - status_report.go: Status reporting.
//   - events.go: lifecycle events for metrics.
//
// Models are cached by resolved artifact path and are never evicted while the
// Manager lives. Callers hold one Manager per process and pass it around;
// there is no package-level state.
package manager
