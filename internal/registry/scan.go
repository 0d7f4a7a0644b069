// Package registry discovers model artifacts on disk and records them in
// the catalog.
package registry

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tensord/internal/catalog"
	"tensord/internal/common/fsutil"
)

// sidecarSuffix marks parameter files written next to an artifact; they
// are not models of their own.
const sidecarSuffix = ".params.safetensors"

var artifactExts = []string{".safetensors", ".onnx"}

// Scanner walks a model directory for loadable artifacts.
type Scanner struct {
	// Checksums fills ModelRecord.MD5 from the file contents.
	Checksums bool
}

func NewScanner() Scanner { return Scanner{} }

// Scan finds *.safetensors and *.onnx files under dir (extensions match
// case-insensitively). The model name is the path relative to dir without
// its extension; the stored path uses the {model_path} token so the
// catalog stays valid when the model root moves.
func (s Scanner) Scan(dir string) ([]catalog.ModelRecord, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	var models []catalog.ModelRecord
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isArtifact(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		rec := catalog.ModelRecord{
			Name: strings.TrimSuffix(rel, filepath.Ext(rel)),
			Path: fsutil.ModelPathToken + "/" + rel,
		}
		if s.Checksums {
			sum, err := fileMD5(p)
			if err != nil {
				return err
			}
			rec.MD5 = sum
		}
		models = append(models, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// Scan is Scanner{}.Scan.
func Scan(dir string) ([]catalog.ModelRecord, error) {
	return NewScanner().Scan(dir)
}

func isArtifact(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, sidecarSuffix) {
		return false
	}
	for _, ext := range artifactExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// RegisterAll upserts every record into store. Records already in the
// catalog keep their hook columns and description when the scanned record
// leaves them empty.
func RegisterAll(ctx context.Context, store catalog.ReadWriter, models []catalog.ModelRecord) error {
	var errs []error
	for _, rec := range models {
		if prev, err := store.ModelPath(ctx, rec.Name); err == nil {
			rec = merge(prev, rec)
		} else if !catalog.IsNotFound(err) {
			errs = append(errs, err)
			continue
		}
		if err := store.PutModel(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func merge(prev, next catalog.ModelRecord) catalog.ModelRecord {
	if next.BaseModel == "" {
		next.BaseModel = prev.BaseModel
	}
	if next.Preprocess == "" {
		next.Preprocess = prev.Preprocess
	}
	if next.Postprocess == "" {
		next.Postprocess = prev.Postprocess
	}
	if next.Description == "" {
		next.Description = prev.Description
	}
	return next
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
