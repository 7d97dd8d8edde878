package main

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blendsdk/blend65-sub017/pkg/compiler"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

var (
	errNoFrontend = errors.New("b65c: no frontend configured (parser is an external collaborator)")
	errNoBackend  = errors.New("b65c: no backend configured (emitter is an external collaborator)")
)

// Compiled is what a Backend consumes: the middle-end's result alongside
// the target it was compiled for, since an emitter needs both (load
// address, ROM/hardware ranges) to produce a runnable image.
type Compiled struct {
	Result *compiler.Result
	Target target.Target
}

// frontend and backend are package-level so a driver embedding this CLI
// (rather than running it standalone) can swap either one in before
// Execute, e.g. in a test binary or an IDE-hosted build. Neither is wired
// to a real implementation here: both are external collaborators per
// SPEC_FULL.md §5.
var (
	frontend Frontend = noFrontend{}
	backend  Backend  = noBackend{}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "b65c",
	Short: "Middle-end driver for the Blend65 6502/C64 compiler.",
	Long:  "b65c wires a source frontend, the Blend65 middle-end, and an output backend together. The frontend and backend are injected; this binary alone only proves the wiring.",
}

var compileCmd = &cobra.Command{
	Use:   "compile [flags] file1.b65 file2.b65 ...",
	Short: "Compile the given source files.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println(cmd.UsageString())
			os.Exit(2)
		}
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}
		runCompile(cmd, args)
	},
}

func runCompile(cmd *cobra.Command, args []string) {
	t := target.C64()

	programs, err := frontend.Parse(args)
	if err != nil {
		fmt.Println(err)
		os.Exit(3)
	}

	opts := compiler.Options{
		OptimizationLevel:   compiler.OptimizationLevel(int(GetUint(cmd, "opt"))),
		EmitSourceMaps:      GetFlag(cmd, "source-maps"),
		EnableOptimizations: GetFlag(cmd, "optimize"),
	}

	entry := log.WithField("cmd", "compile")
	result := compiler.Compile(programs, t, opts, entry)

	printDiagnostics(result.Diagnostics)

	if !result.Success {
		os.Exit(1)
	}

	if !GetFlag(cmd, "emit") {
		return
	}

	image, err := backend.Emit(&Compiled{Result: result, Target: t})
	if err != nil {
		fmt.Println(err)
		os.Exit(4)
	}

	out := GetString(cmd, "out")
	if err := os.WriteFile(out, image, 0644); err != nil {
		fmt.Println(err)
		os.Exit(4)
	}
}

func printDiagnostics(diags []diag.Diagnostic) {
	for _, d := range diags {
		fmt.Println(d.String())
	}
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	compileCmd.Flags().Uint("opt", 0, "optimization level (0-3)")
	compileCmd.Flags().Bool("optimize", false, "enable loop unrolling (together with --opt 1 or higher)")
	compileCmd.Flags().Bool("source-maps", false, "set Options.EmitSourceMaps (Compile itself does not read it)")
	compileCmd.Flags().Bool("emit", false, "run the backend over a successful compile and write an output image")
	compileCmd.Flags().StringP("out", "o", "a.prg", "output image path, used with --emit")
}
