package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tensord/pkg/tensorvec"
)

func newVecCmd() *cobra.Command {
	vec := &cobra.Command{
		Use:   "vec",
		Short: "Parse, combine and encode vector literals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("vec requires a subcommand: parse|add|sub|equal|encode|decode")
		},
	}

	parse := &cobra.Command{
		Use:     "parse <literal>",
		Short:   "Parse a literal and print its full form, dim and shape",
		Example: "  tensord vec parse '[1,2,3,4]{2,2}'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseArg(args[0])
			if err != nil {
				return err
			}
			return printVector(cmd.OutOrStdout(), v, true)
		},
	}

	binary := func(use, short string, op func(a, b tensorvec.Vector) (tensorvec.Vector, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <left> <right>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := parseArg(args[0])
				if err != nil {
					return err
				}
				b, err := parseArg(args[1])
				if err != nil {
					return err
				}
				out, err := op(a, b)
				if err != nil {
					return err
				}
				return printVector(cmd.OutOrStdout(), out, false)
			},
		}
	}

	equal := &cobra.Command{
		Use:   "equal <left> <right>",
		Short: "Compare two vectors element-wise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseArg(args[0])
			if err != nil {
				return err
			}
			b, err := parseArg(args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tensorvec.Equal(a, b))
			return err
		},
	}

	encode := &cobra.Command{
		Use:   "encode <literal>",
		Short: "Print the binary encoding as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseArg(args[0])
			if err != nil {
				return err
			}
			b, err := v.MarshalBinary()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
			return err
		},
	}

	decode := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a hex binary encoding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			v, err := tensorvec.DecodeBinary(b)
			if err != nil {
				return err
			}
			return printVector(cmd.OutOrStdout(), v, false)
		},
	}

	vec.AddCommand(parse,
		binary("add", "Add two vectors", tensorvec.Add),
		binary("sub", "Subtract right from left", tensorvec.Sub),
		equal, encode, decode)
	return vec
}

// parseArg parses a literal and attaches the positional hint to syntax errors.
func parseArg(lit string) (tensorvec.Vector, error) {
	v, err := tensorvec.Parse(lit)
	var se tensorvec.SyntaxError
	if errors.As(err, &se) {
		return v, fmt.Errorf("%w\nHINT:  %s", se, se.Hint())
	}
	return v, err
}

func printVector(w io.Writer, v tensorvec.Vector, verbose bool) error {
	lit, err := tensorvec.FormatFull(v)
	if err != nil {
		return err
	}
	if !verbose {
		_, err = fmt.Fprintln(w, lit)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\ndim=%d shape=%v\n", lit, v.Dim(), v.Shape())
	return err
}
