package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/landmark"
)

// setupTestEnv points the config directory at a fresh temp dir.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VOXLOCK_CONFIG_DIR", dir)
	return dir
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false
	configPath = ""
	formatOutput = "yaml"
	outputFile = ""

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
			return
		}
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeTestFile writes content to a temp dir and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testFace builds a wire face with every mouth point at mouthY.
func testFace(id int, noseX, mouthY float64) landmark.Face {
	l := map[string][2]float64{string(asd.RoleNoseTip): {noseX, 0.5}}
	for _, r := range asd.MouthRoles {
		l[string(r)] = [2]float64{noseX, mouthY}
	}
	return landmark.Face{ID: id, Landmarks: l}
}

// writeFrames encodes frames to a file named name.
func writeFrames(t *testing.T, name string, frames []landmark.Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := landmark.NewEncoder(f, landmark.EncodingForPath(path))
	for _, fr := range frames {
		if err := enc.Encode(fr); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

// twoSpeakerFrames: face 0 is picked first on position, then face 1
// starts talking and takes over. Frame 3 also carries a face whose mesh
// is too short to score.
func twoSpeakerFrames() []landmark.Frame {
	loud := 1.0
	return []landmark.Frame{
		{Seq: 1, IntervalMs: 100, Energy: &loud, Faces: []landmark.Face{testFace(0, 0.375, 0.5), testFace(1, 0.625, 0.5)}},
		{Seq: 2, IntervalMs: 100, Energy: &loud, Faces: []landmark.Face{testFace(0, 0.375, 0.5), testFace(1, 0.625, 0.52)}},
		{Seq: 3, IntervalMs: 100, Energy: &loud, Faces: []landmark.Face{
			testFace(0, 0.375, 0.5),
			testFace(1, 0.625, 0.55),
			{ID: 2, Mesh: [][]float64{{0.5, 0.5, 0}}},
		}},
	}
}
