package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/conjunction/internal/domain/forecast"
)

type initModelOptions struct {
	dir  string
	seed int64
	zero bool
	cfg  forecast.Config
}

func newInitModelCmd() *cobra.Command {
	o := &initModelOptions{cfg: forecast.DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "init-model",
		Short: "Write an untrained model artifact",
		Long: `Write manifest.yaml and weights.json for a randomly initialized model,
or with --zero a model whose forecast equals the latest reported Pc.`,
		Example: "  conjctl init-model --out model --seed 1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInitModel(cmd, o)
		},
	}
	cmd.Flags().StringVarP(&o.dir, "out", "o", "", "Output directory")
	cmd.Flags().Int64Var(&o.seed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&o.zero, "zero", false, "Write an all-zero model")
	cmd.Flags().IntVar(&o.cfg.HiddenSize, "hidden-size", o.cfg.HiddenSize, "LSTM hidden size")
	cmd.Flags().IntVar(&o.cfg.NumLayers, "num-layers", o.cfg.NumLayers, "Stacked LSTM layers")
	cmd.Flags().IntVar(&o.cfg.SequenceLength, "sequence-length", o.cfg.SequenceLength, "Input sequence length")
	cmd.Flags().Float64Var(&o.cfg.Dropout, "dropout", o.cfg.Dropout, "Dropout between layers")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runInitModel(cmd *cobra.Command, o *initModelOptions) error {
	var (
		m   *forecast.Model
		err error
	)
	if o.zero {
		m, err = forecast.NewZero(o.cfg)
	} else {
		m, err = forecast.NewRandom(o.cfg, o.seed)
	}
	if err != nil {
		return err
	}
	path, err := forecast.Save(o.dir, m)
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
