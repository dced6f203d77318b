package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/audio/eq"
)

var filterCount int

// filterInfo is one row of `voxlock filter`.
type filterInfo struct {
	Speaker int              `json:"speaker" yaml:"speaker"`
	Filter  asd.FilterConfig `json:"filter" yaml:"filter"`

	// AppliedHz is the center frequency after clamping to the Nyquist
	// frequency of the configured sample rate.
	AppliedHz float64 `json:"applied_hz" yaml:"applied_hz"`

	// PeakDB is the response at AppliedHz.
	PeakDB float64 `json:"peak_db" yaml:"peak_db"`
	Error  string  `json:"error,omitempty" yaml:"error,omitempty"`
}

type filterList []filterInfo

func (l filterList) Header() []string {
	return []string{"SPEAKER", "CENTER HZ", "GAIN DB", "Q", "PEAK DB", "STATUS"}
}

func (l filterList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, f := range l {
		status, peak := "ok", fmt.Sprintf("%.2f", f.PeakDB)
		switch {
		case f.Error != "":
			status, peak = f.Error, "-"
		case f.AppliedHz != f.Filter.CenterFrequencyHz:
			status = fmt.Sprintf("clamped to %gHz", f.AppliedHz)
		}
		rows[i] = []string{
			strconv.Itoa(f.Speaker),
			fmt.Sprintf("%g", f.Filter.CenterFrequencyHz),
			fmt.Sprintf("%g", f.Filter.GainDB),
			fmt.Sprintf("%g", f.Filter.Q),
			peak,
			status,
		}
	}
	return rows
}

var filterCmd = &cobra.Command{
	Use:   "filter [speaker-id...]",
	Short: "Show the filter each speaker maps to",
	Long: `Show the peaking filter applied when a speaker becomes active.

Speaker ids are the zero-based face indices. Without arguments the first
--count ids are listed. A filter centered above the Nyquist frequency of
audio.sample_rate is clamped to it, where the boost vanishes; such rows are
marked in the STATUS column.

Examples:
  voxlock filter
  voxlock filter 0 5 -o table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		format, err := cfg.Format()
		if err != nil {
			return err
		}
		rate := float64(format.SampleRate())

		ids := make([]asd.CandidateID, 0, max(len(args), filterCount))
		for _, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid speaker id %q", a)
			}
			ids = append(ids, asd.CandidateID(n))
		}
		if len(args) == 0 {
			for i := range filterCount {
				ids = append(ids, asd.CandidateID(i))
			}
		}

		m := cfg.Mapper()
		out := make(filterList, 0, len(ids))
		for _, id := range ids {
			fc := m.ConfigFor(id)
			info := filterInfo{
				Speaker:   int(id),
				Filter:    fc,
				AppliedHz: eq.ClampFrequency(rate, fc.CenterFrequencyHz),
			}
			p, err := eq.NewPeaking(rate, fc.CenterFrequencyHz, fc.GainDB, fc.Q)
			if err != nil {
				info.Error = err.Error()
			} else {
				info.PeakDB = p.ResponseDB(rate, info.AppliedHz)
			}
			out = append(out, info)
		}
		return output(cmd, out)
	},
}

func init() {
	filterCmd.Flags().IntVarP(&filterCount, "count", "n", 4, "number of speaker ids to list when none are given")
	rootCmd.AddCommand(filterCmd)
}
