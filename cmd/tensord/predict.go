package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tensord/internal/engine"
	"tensord/internal/hooks"
	"tensord/internal/manager"
	"tensord/pkg/tensorvec"
)

func newPredictCmd(opts *options) *cobra.Command {
	var (
		hookArgs []string
		device   string
	)
	cmd := &cobra.Command{
		Use:   "predict <model> <literal>...",
		Short: "Run one inference against a catalog model",
		Example: "  tensord predict iris '[5.1,3.5,1.4,0.2]'\n" +
			"  tensord predict sentiment '[0.1,0.9]' --arg negative --arg positive",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := make([]tensorvec.Vector, 0, len(args)-1)
			for i, lit := range args[1:] {
				v, err := parseArg(lit)
				if err != nil {
					return fmt.Errorf("input %d: %w", i, err)
				}
				inputs = append(inputs, v)
			}
			d, err := engine.ParseDevice(device)
			if err != nil {
				return err
			}

			store, err := openCatalog(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()
			mgr := newManager(opts, store)
			defer mgr.Close()

			if d == engine.GPU {
				path, err := mgr.LoadModel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ok, err := mgr.SetDevice(path, d); err != nil {
					return err
				} else if !ok {
					opts.log.Warn().Str("model", args[0]).Msg("gpu unavailable, running on cpu")
				}
			}

			res, err := mgr.Infer(cmd.Context(), args[0], inputs, hooks.Args(hookArgs))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch res.Kind {
			case manager.ResultNumeric:
				_, err = fmt.Fprintln(out, strconv.FormatFloat(res.Numeric, 'g', -1, 64))
			case manager.ResultText:
				_, err = fmt.Fprintln(out, res.Text)
			default:
				err = printVector(out, res.Vector, false)
			}
			return err
		},
	}
	cmd.Flags().StringArrayVar(&hookArgs, "arg", nil, "Argument passed to the model's hooks (repeatable)")
	cmd.Flags().StringVar(&device, "device", "cpu", "Device to run on: cpu|gpu")
	return cmd
}
