package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mthorley/hydronet/internal/sim"
)

func runTributary(t *testing.T) *sim.Results {
	t.Helper()
	in, err := sim.NewInflow("creek", []float64{0, 1, 2})
	if err != nil {
		t.Fatalf("NewInflow failed: %v", err)
	}
	s, err := sim.New([]sim.Node{
		in,
		sim.NewStorage("dam", []string{"creek"}, nil),
		sim.NewOutlet("river", []string{"dam"}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Simulate(3); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	return s.Results()
}

func TestWriteCSV(t *testing.T) {
	results := runTributary(t)
	path := filepath.Join(t.TempDir(), "dam.csv")
	if err := WriteCSV(results.Log("dam"), path); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output failed: %v", err)
	}
	want := "inflow,outlet@1,spilled,storage\n" +
		"0,0,0,0\n" +
		"1,0,0,1\n" +
		"2,2,0,1\n"
	if string(got) != want {
		t.Errorf("unexpected csv content:\ngot:\n%swant:\n%s", got, want)
	}
}

func TestWriteAllCreatesOneFilePerNode(t *testing.T) {
	results := runTributary(t)
	dir := filepath.Join(t.TempDir(), "out")
	if err := WriteAll(results, dir); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	for _, name := range []string{"creek", "dam", "river"} {
		if _, err := os.Stat(filepath.Join(dir, name+".csv")); err != nil {
			t.Errorf("expected %s.csv: %v", name, err)
		}
	}
}

func TestWriteCSVBadPath(t *testing.T) {
	results := runTributary(t)
	err := WriteCSV(results.Log("dam"), filepath.Join(t.TempDir(), "missing", "dam.csv"))
	if err == nil {
		t.Error("expected error for unwritable path")
	}
}
