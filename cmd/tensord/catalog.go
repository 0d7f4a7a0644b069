package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tensord/internal/bridge"
	"tensord/internal/catalog"
	"tensord/internal/common/fsutil"
	"tensord/internal/engine"
	"tensord/internal/registry"
	"tensord/pkg/tensorvec"
)

func newCatalogCmd(opts *options) *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the SQLite model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("catalog requires a subcommand: init|add-model|add-base|set-layers|scan|show|delete")
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the catalog tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "catalog initialized at %s\n", store.Path())
			return err
		},
	}

	var rec catalog.ModelRecord
	addModel := &cobra.Command{
		Use:     "add-model <name> <path>",
		Short:   "Add or update a model",
		Example: "  tensord catalog add-model iris '{model_path}/iris.safetensors' --postprocess argmax",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			r := rec
			r.Name, r.Path = args[0], args[1]
			if err := store.PutModel(cmd.Context(), r); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "model %q saved\n", r.Name)
			return err
		},
	}
	addModel.Flags().StringVar(&rec.BaseModel, "base", "", "Base model whose artifact this model uses")
	addModel.Flags().StringVar(&rec.MD5, "md5", "", "Expected md5 of the artifact")
	addModel.Flags().StringVar(&rec.Preprocess, "preprocess", "", "Built-in preprocess hook")
	addModel.Flags().StringVar(&rec.Postprocess, "postprocess", "", "Built-in postprocess hook")
	addModel.Flags().StringVar(&rec.Description, "description", "", "Free-form description")

	addBase := &cobra.Command{
		Use:   "add-base <name> <path>",
		Short: "Add or update a base model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.PutBaseModel(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "base model %q saved\n", args[0])
			return err
		},
	}

	var from string
	setLayers := &cobra.Command{
		Use:   "set-layers <model> [name=literal ...]",
		Short: "Replace a model's layer parameters",
		Long: "Replace a model's layer parameters, either from name=literal pairs in order\n" +
			"or, with --from, from the named parameters of an artifact.",
		Example: "  tensord catalog set-layers iris 'fc.weight=[1,0,0,1]{2,2}' 'fc.bias=[0,0]'\n" +
			"  tensord catalog set-layers iris --from '{model_path}/iris.safetensors'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params []catalog.LayerParameter
			var err error
			if from != "" {
				if len(args) > 1 {
					return fmt.Errorf("--from cannot be combined with name=literal pairs")
				}
				params, err = layersFromArtifact(opts, from)
			} else {
				params, err = layersFromArgs(args[1:])
			}
			if err != nil {
				return err
			}
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.PutLayerParameters(cmd.Context(), args[0], params); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d layers saved for %q\n", len(params), args[0])
			return err
		},
	}
	setLayers.Flags().StringVar(&from, "from", "", "Read parameters from this artifact")

	var checksums bool
	scan := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Register every artifact under dir (defaults to the model root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.cfg.ModelRoot
			if len(args) == 1 {
				dir = args[0]
			}
			models, err := registry.Scanner{Checksums: checksums}.Scan(dir)
			if err != nil {
				return err
			}
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := registry.RegisterAll(cmd.Context(), store, models); err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.Name, m.Path)
			}
			return nil
		},
	}
	scan.Flags().BoolVar(&checksums, "checksums", false, "Record md5 sums of the artifacts")

	show := &cobra.Command{
		Use:   "show [model]",
		Short: "Print catalog models, or one model with its layers, as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 0 {
				models, err := store.ListModels(cmd.Context())
				if err != nil {
					return err
				}
				return enc.Encode(models)
			}
			r, err := store.ModelPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := struct {
				catalog.ModelRecord
				Layers []layerView `json:"layers"`
			}{ModelRecord: r}
			layers, err := store.LayerParameters(cmd.Context(), args[0])
			if err != nil && !catalog.IsNotFound(err) {
				return err
			}
			for _, l := range layers {
				lit, err := tensorvec.FormatFull(l.Value)
				if err != nil {
					return err
				}
				out.Layers = append(out.Layers, layerView{Name: l.Name, Value: lit})
			}
			return enc.Encode(out)
		},
	}

	del := &cobra.Command{
		Use:   "delete <model>",
		Short: "Remove a model and its layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.DeleteModel(cmd.Context(), args[0])
		},
	}

	cat.AddCommand(initCmd, addModel, addBase, setLayers, scan, show, del)
	return cat
}

type layerView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func layersFromArgs(pairs []string) ([]catalog.LayerParameter, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no layers given")
	}
	out := make([]catalog.LayerParameter, 0, len(pairs))
	for _, p := range pairs {
		name, lit, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("layer %q: want name=literal", p)
		}
		v, err := parseArg(lit)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", name, err)
		}
		out = append(out, catalog.LayerParameter{Name: name, Value: v})
	}
	return out, nil
}

// layersFromArtifact loads path with the default runtimes and copies its
// named parameters out in order.
func layersFromArtifact(opts *options, path string) ([]catalog.LayerParameter, error) {
	p, err := fsutil.ExpandModelPath(path, opts.cfg.ModelRoot)
	if err != nil {
		return nil, err
	}
	rt := engine.NewDefault(engine.Options{ORTLibraryPath: opts.cfg.ORTLibraryPath})
	mod, err := rt.Load(p)
	if err != nil {
		return nil, err
	}
	defer mod.Close()
	var out []catalog.LayerParameter
	for _, np := range mod.NamedParameters() {
		v, err := bridge.FromNative(np.Tensor)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", np.Name, err)
		}
		out = append(out, catalog.LayerParameter{Name: np.Name, Value: v})
	}
	return out, nil
}
