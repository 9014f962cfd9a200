package cmd

import (
	"fmt"

	"github.com/jclassvm/jclassvm/pkg/classfile"
	"github.com/jclassvm/jclassvm/pkg/vm"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <path.class> <method>",
	Short: "Decode a class file and invoke a public static no-arg method",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := classfile.DecodeFile(args[0])
		if err != nil {
			return err
		}
		result, err := vm.New().CallPublicStaticNoArg(cf, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatResult(result))
		return nil
	},
}

func formatResult(v vm.Value) string {
	switch v.Kind {
	case vm.KindVoid:
		return "(void)"
	case vm.KindLong:
		return fmt.Sprintf("%d", v.Long)
	case vm.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case vm.KindDouble:
		return fmt.Sprintf("%g", v.Double)
	case vm.KindRef:
		return fmt.Sprintf("%v", v.Ref)
	default:
		return fmt.Sprintf("%d", v.Int)
	}
}
