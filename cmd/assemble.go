package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridkey/horizon/app"
	"github.com/gridkey/horizon/config"
	"github.com/gridkey/horizon/pkg/export"
)

var (
	assembleOut    string
	assembleFormat string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble one horizon input and print it",
	RunE:  runAssemble,
}

func init() {
	assembleCmd.Flags().StringVarP(&assembleOut, "out", "o", "", "write the input to a file instead of stdout")
	assembleCmd.Flags().StringVarP(&assembleFormat, "format", "f", "json", "output format: json or csv")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}

	in, err := svc.AssembleInput(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if assembleOut != "" {
		f, err := os.Create(assembleOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch assembleFormat {
	case "json":
		return export.WriteJSON(w, in)
	case "csv":
		return export.WriteCSV(w, in)
	default:
		return fmt.Errorf("unknown format %q", assembleFormat)
	}
}
