package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tensord/internal/catalog"
	"tensord/internal/config"
	"tensord/internal/engine"
	"tensord/pkg/tensorvec"
)

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmdWith(defaultOptions())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVecParse(t *testing.T) {
	out, err := run(t, "vec", "parse", "[1,2,3,4]{2,2}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "[1,2,3,4]{2,2}\ndim=4 shape=[2 2]\n" {
		t.Fatalf("out=%q", out)
	}
}

func TestVecSyntaxErrorCarriesHint(t *testing.T) {
	_, err := run(t, "vec", "parse", "[1,,2]")
	if !tensorvec.IsSyntax(err) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	if !strings.Contains(err.Error(), "HINT:") {
		t.Fatalf("missing hint: %v", err)
	}
}

func TestVecArithmetic(t *testing.T) {
	out, err := run(t, "vec", "add", "[1,2]", "[3,4]")
	if err != nil || out != "[4,6]{2}\n" {
		t.Fatalf("add out=%q err=%v", out, err)
	}
	out, err = run(t, "vec", "sub", "[1,2]", "[3,4]")
	if err != nil || out != "[-2,-2]{2}\n" {
		t.Fatalf("sub out=%q err=%v", out, err)
	}
	if _, err := run(t, "vec", "add", "[1,2]", "[1,2,3]"); !tensorvec.IsShapeMismatch(err) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	out, err = run(t, "vec", "equal", "[1,2]", "[1,2.0000001]")
	if err != nil || out != "true\n" {
		t.Fatalf("equal out=%q err=%v", out, err)
	}
}

func TestVecEncodeDecode(t *testing.T) {
	hexOut, err := run(t, "vec", "encode", "[1.5,-2]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := run(t, "vec", "decode", strings.TrimSpace(hexOut))
	if err != nil || out != "[1.5,-2]{2}\n" {
		t.Fatalf("decode out=%q err=%v", out, err)
	}
	if _, err := run(t, "vec", "decode", "zz"); err == nil {
		t.Fatalf("expected bad hex error")
	}
}

func TestRejectsInvalidConfig(t *testing.T) {
	_, err := run(t, "--log-format", "xml", "vec", "parse", "[1]")
	if err == nil || !strings.Contains(err.Error(), "log_format") {
		t.Fatalf("expected log_format error, got %v", err)
	}
}

// writeModel saves a 2x2 identity layer under dir/name.safetensors.
func writeModel(t *testing.T, dir, name string) {
	t.Helper()
	mk := func(data []float32, shape ...int64) *engine.Tensor {
		x, err := engine.NewFloat32(data, shape)
		if err != nil {
			t.Fatalf("tensor: %v", err)
		}
		return x
	}
	err := engine.SaveMLP(filepath.Join(dir, name+".safetensors"), "linear:fc", []engine.NamedParameter{
		{Name: "fc.weight", Tensor: mk([]float32{1, 0, 0, 1}, 2, 2)},
		{Name: "fc.bias", Tensor: mk([]float32{0, 0}, 2)},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestCatalogAndPredict(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "iris")
	db := filepath.Join(dir, "catalog.db")
	base := []string{"--catalog", db, "--model-root", dir, "--log-level", "error"}
	cmd := func(args ...string) string {
		t.Helper()
		out, err := run(t, append(append([]string{}, base...), args...)...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out
	}

	if out := cmd("catalog", "init"); !strings.Contains(out, db) {
		t.Fatalf("init out=%q", out)
	}
	cmd("catalog", "add-model", "iris", "{model_path}/iris.safetensors", "--postprocess", "argmax")
	cmd("catalog", "set-layers", "iris", "--from", "{model_path}/iris.safetensors")

	if out := cmd("predict", "iris", "[5,1]"); out != "0\n" {
		t.Fatalf("identity predict=%q", out)
	}

	cmd("catalog", "set-layers", "iris", "fc.weight=[0,1,1,0]{2,2}", "fc.bias=[0,0]")
	if out := cmd("predict", "iris", "[5,1]"); out != "1\n" {
		t.Fatalf("swapped predict=%q", out)
	}

	var shown struct {
		Name   string      `json:"name"`
		Layers []layerView `json:"layers"`
	}
	if err := json.Unmarshal([]byte(cmd("catalog", "show", "iris")), &shown); err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(shown.Layers) != 2 || shown.Layers[0].Value != "[0,1,1,0]{2,2}" {
		t.Fatalf("layers=%+v", shown.Layers)
	}

	cmd("catalog", "add-model", "raw", "{model_path}/iris.safetensors")
	cmd("catalog", "set-layers", "raw", "fc.weight=[2,0,0,2]{2,2}", "fc.bias=[1,1]")
	if out := cmd("predict", "raw", "[1,2]"); out != "[3,5]{2}\n" {
		t.Fatalf("raw predict=%q", out)
	}

	if _, err := run(t, append(base, "predict", "nope", "[1]")...); err == nil {
		t.Fatalf("expected missing model error")
	}
	if _, err := run(t, append(base, "catalog", "set-layers", "iris", "fc.weight")...); err == nil {
		t.Fatalf("expected name=literal error")
	}

	cmd("catalog", "delete", "raw")
	if _, err := run(t, append(base, "catalog", "delete", "raw")...); !catalog.IsNotFound(err) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCatalogScan(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "a")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeModel(t, filepath.Join(dir, "sub"), "b")
	db := filepath.Join(dir, "catalog.db")
	out, err := run(t, "--catalog", db, "--model-root", dir, "catalog", "scan", "--checksums")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "a\t{model_path}/a.safetensors") || !strings.Contains(out, "sub/b\t{model_path}/sub/b.safetensors") {
		t.Fatalf("scan out=%q", out)
	}

	out, err = run(t, "--catalog", db, "catalog", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var models []catalog.ModelRecord
	if err := json.Unmarshal([]byte(out), &models); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(models) != 2 || models[0].MD5 == "" {
		t.Fatalf("models=%+v", models)
	}
}

func TestMergeConfigFlagsWin(t *testing.T) {
	dst := config.Config{Addr: ":8080", LogLevel: "info", MaxBodyBytes: 1 << 20}
	src := config.Config{Addr: ":9000", LogLevel: "debug", MaxBodyBytes: 42, EnableGPU: true, CORSAllowedOrigins: []string{"*"}}
	changed := func(flag string) bool { return flag == "log-level" }
	mergeConfig(&dst, src, changed)
	if dst.Addr != ":9000" || dst.LogLevel != "info" || dst.MaxBodyBytes != 42 || !dst.EnableGPU {
		t.Fatalf("merged=%+v", dst)
	}
	if len(dst.CORSAllowedOrigins) != 1 {
		t.Fatalf("origins=%v", dst.CORSAllowedOrigins)
	}
}

func TestConfigFileMerged(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tensord.yaml")
	db := filepath.Join(dir, "from-file.db")
	if err := os.WriteFile(cfgPath, []byte("catalog_path: "+db+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "--config", cfgPath, "catalog", "init")
	if err != nil || !strings.Contains(out, db) {
		t.Fatalf("out=%q err=%v", out, err)
	}
}
