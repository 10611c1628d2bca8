package sweep

import (
	"fmt"
	"path"
)

// ResultsDir is the relative directory run logs and plots are written to.
const ResultsDir = "expresults"

// Naming derives the per-run file names from a suite name.
type Naming string

func (n Naming) LogPath() string {
	return path.Join(ResultsDir, string(n)+".log")
}

func (n Naming) PNGFilename() string {
	return path.Join(ResultsDir, string(n)+".png")
}

// PlotCommand is the command line the reporting step runs over the run log.
func (n Naming) PlotCommand() string {
	return fmt.Sprintf("tools/plot-suite.py %s %s", n.LogPath(), n.PNGFilename())
}

// Labels returns the labels of variants in order.
func Labels(variants []Variant) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v.Label()
	}
	return out
}
