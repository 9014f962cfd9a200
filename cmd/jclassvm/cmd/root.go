// Package cmd wires the jclassvm command-line surface: thin cobra commands
// over the classfile/vm/disasm packages, no decoding or interpretation logic
// of its own.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jclassvm",
	Short: "Decode and run a single JVM class file",
	Long:  `jclassvm disassembles or interprets a single .class file: no classpath, no JRE, no object heap.`,
}

// Execute runs the root command, printing any error and exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(runCmd)
}
