package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	lox "github.com/xirelogy/go-lox"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Run a .lox source file or a " + lox.ImageExt + " image",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd, opts, args[0])
		},
	}
}

func runFile(cmd *cobra.Command, opts *cliOptions, path string) error {
	interp, err := opts.newInterpreter(cmd)
	if err != nil {
		return err
	}
	defer interp.Close()

	prog, err := interp.LoadFile(path)
	if err != nil {
		return err
	}
	defer prog.Release()
	return interp.Run(prog)
}

func newCompileCmd(opts *cliOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile a .lox source file into a bytecode image",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, err := opts.newInterpreter(cmd)
			if err != nil {
				return err
			}
			defer interp.Close()

			prog, err := interp.LoadFile(args[0])
			if err != nil {
				return err
			}
			defer prog.Release()
			image, err := prog.Image()
			if err != nil {
				return err
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + lox.ImageExt
			}
			if err := os.WriteFile(output, image, 0644); err != nil {
				return err
			}
			log.Infof("wrote %s (%d bytes)", output, len(image))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "image path (default: FILE with the "+lox.ImageExt+" extension)")
	return cmd
}

func newDisasmCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm FILE",
		Short: "Print the bytecode listing of a source file or image",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, err := opts.newInterpreter(cmd)
			if err != nil {
				return err
			}
			defer interp.Close()

			prog, err := interp.LoadFile(args[0])
			if err != nil {
				return err
			}
			defer prog.Release()
			return prog.Disassemble(cmd.OutOrStdout())
		},
	}
}
