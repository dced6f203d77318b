package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/pkg/asd"
)

// presetInfo is one row of `voxlock presets`.
type presetInfo struct {
	Name    string      `json:"name" yaml:"name"`
	Weights asd.Weights `json:"weights" yaml:"weights"`
	Active  bool        `json:"active" yaml:"active"`
}

type presetList []presetInfo

func (l presetList) Header() []string { return []string{"NAME", "LIP", "AUDIO", "BIAS", "ACTIVE"} }

func (l presetList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, p := range l {
		active := ""
		if p.Active {
			active = "*"
		}
		rows[i] = []string{
			p.Name,
			fmt.Sprintf("%.2f", p.Weights.Lip),
			fmt.Sprintf("%.2f", p.Weights.Audio),
			fmt.Sprintf("%.2f", p.Weights.Bias),
			active,
		}
	}
	return rows
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the scoring weight presets",
	Long: `List the built-in weight presets for the activity score.

  score = lip * lipVelocity + audio * energy + bias * positionalBias

The preset in use (scoring.preset, unless scoring.weights is set) is
marked active.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		current, err := cfg.Weights()
		if err != nil {
			return err
		}

		var out presetList
		for _, name := range asd.Presets() {
			w, _ := asd.LookupPreset(name)
			out = append(out, presetInfo{Name: name, Weights: w, Active: w == current})
		}
		return output(cmd, out)
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
