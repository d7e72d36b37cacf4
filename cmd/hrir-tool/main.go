// ABOUTME: Command-line tool for HRIR sphere files
// ABOUTME: Synthesizes, resamples and inspects the spheres the HRTF renderer loads
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/internal/version"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

const usage = `usage: hrir-tool <command> [flags]

commands:
  synth     -o FILE [-rate HZ] [-length N]   write a synthetic spherical-head sphere
  resample  -o FILE -rate HZ INPUT           convert a sphere to another sample rate
  info      FILE                             print a summary of a sphere
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "synth":
		err = runSynth(os.Args[2:])
	case "resample":
		err = runResample(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:], os.Stdout)
	case "version", "-version", "--version":
		fmt.Println(version.String())
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "hrir-tool %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	out := fs.String("o", "", "Output file")
	rate := fs.Int("rate", 48000, "Sample rate in Hz")
	length := fs.Int("length", 128, "Samples per response")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-o is required")
	}
	return writeSphere(*out, hrtf.Synthesize(*rate, *length))
}

func runResample(args []string) error {
	fs := flag.NewFlagSet("resample", flag.ContinueOnError)
	out := fs.String("o", "", "Output file")
	rate := fs.Int("rate", 0, "Target sample rate in Hz")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || *rate <= 0 || fs.NArg() != 1 {
		return fmt.Errorf("need -o, a positive -rate and one input file")
	}
	s, err := hrtf.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	return writeSphere(*out, s.Resampled(*rate))
}

func runInfo(args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("need one sphere file")
	}
	s, err := hrtf.LoadFile(args[0])
	if err != nil {
		return err
	}
	describe(s, w)
	return nil
}

func writeSphere(path string, s *hrtf.Sphere) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// probes are the directions summarized by info, in listener space
var probes = []struct {
	name string
	dir  mgl32.Vec3
}{
	{"front", mgl32.Vec3{0, 0, 1}},
	{"right", mgl32.Vec3{1, 0, 0}},
	{"back", mgl32.Vec3{0, 0, -1}},
	{"left", mgl32.Vec3{-1, 0, 0}},
	{"above", mgl32.Vec3{0, 1, 0}},
}

// describe prints the sphere's geometry and, per probe direction, each
// ear's onset delay and energy
func describe(s *hrtf.Sphere, w io.Writer) {
	fmt.Fprintf(w, "sample rate  %d Hz\n", s.SampleRate)
	fmt.Fprintf(w, "length       %d samples (%.2f ms)\n", s.Length, 1000*float64(s.Length)/float64(s.SampleRate))
	fmt.Fprintf(w, "points       %d\n", len(s.Points))
	fmt.Fprintf(w, "faces        %d\n", len(s.Faces))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-6s %9s %9s %9s %9s\n", "dir", "L onset", "R onset", "L dB", "R dB")

	left := make([]float32, s.Length)
	right := make([]float32, s.Length)
	for _, p := range probes {
		s.Sample(p.dir, left, right)
		fmt.Fprintf(w, "%-6s %9d %9d %9.1f %9.1f\n", p.name, onset(left), onset(right), energyDB(left), energyDB(right))
	}
}

// onset returns the first sample reaching a tenth of the response's peak
func onset(ir []float32) int {
	var peak float32
	for _, v := range ir {
		peak = max(peak, abs32(v))
	}
	if peak == 0 {
		return -1
	}
	for i, v := range ir {
		if abs32(v) >= peak/10 {
			return i
		}
	}
	return -1
}

func energyDB(ir []float32) float64 {
	var sum float64
	for _, v := range ir {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(sum)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
