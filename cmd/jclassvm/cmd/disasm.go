package cmd

import (
	"os"

	"github.com/jclassvm/jclassvm/pkg/classfile"
	"github.com/jclassvm/jclassvm/pkg/disasm"
	"github.com/spf13/cobra"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <path.class>",
	Short: "Decode a class file and print its disassembly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := classfile.DecodeFile(args[0])
		if err != nil {
			return err
		}
		return disasm.Disassemble(os.Stdout, cf)
	},
}
