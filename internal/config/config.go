package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mthorley/hydronet/internal/sim"
)

// ScenarioConfig is the parsed scenario.yaml: what the network looks
// like, how long to run it, and where the results go.
type ScenarioConfig struct {
	Version  int `yaml:"version"`
	Scenario struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Steps       int    `yaml:"steps"`
	} `yaml:"scenario"`
	Network struct {
		Nodes []NodeConfig `yaml:"nodes"`
	} `yaml:"network"`
	Sinks SinksConfig `yaml:"sinks"`

	// dir is the scenario file's directory; data_file paths resolve
	// against it.
	dir string
}

// NodeConfig declares one node of the network. Type selects which of
// the remaining fields apply.
type NodeConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // inflow, storage or outlet
	Senders []string `yaml:"senders"`

	// Inflow nodes read their series inline or from a CSV column.
	Data     []float64 `yaml:"data"`
	DataFile string    `yaml:"data_file"`
	Column   string    `yaml:"column"`
	Start    int       `yaml:"start"`

	// Storage nodes own a reservoir.
	Reservoir *ReservoirConfig `yaml:"reservoir"`
}

// ReservoirConfig declares the reservoir behind a storage node.
type ReservoirConfig struct {
	Capacity      float64        `yaml:"capacity"`
	InitialVolume float64        `yaml:"initial_volume"`
	Mode          string         `yaml:"mode"`
	Outlets       []OutletConfig `yaml:"outlets"`
	Policy        *PolicyConfig  `yaml:"policy"`
}

// OutletConfig declares one gate. A zero max_release means unlimited.
type OutletConfig struct {
	Name       string  `yaml:"name"`
	Height     float64 `yaml:"height"`
	MinRelease float64 `yaml:"min_release"`
	MaxRelease float64 `yaml:"max_release"`
}

// PolicyConfig declares the operating policy of an active reservoir.
type PolicyConfig struct {
	Type string `yaml:"type"` // constant, schedule, curve or forecast

	// constant
	Target float64 `yaml:"target"`

	// schedule
	Schedule []float64 `yaml:"schedule"`

	// curve
	Curve     string  `yaml:"curve"` // linear, exponential or sigmoid
	Slope     float64 `yaml:"slope"`
	Intercept float64 `yaml:"intercept"`
	Base      float64 `yaml:"base"`
	Rate      float64 `yaml:"rate"`
	Steepness float64 `yaml:"steepness"`

	// forecast
	Decay  float64 `yaml:"decay"`
	Window int     `yaml:"window"`
}

// SinksConfig selects where step records and run results are written.
type SinksConfig struct {
	CSV struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"csv"`
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

// Name returns the scenario name, defaulting to "scenario" if not set.
func (c *ScenarioConfig) Name() string {
	if c.Scenario.Name == "" {
		return "scenario"
	}
	return c.Scenario.Name
}

// CSVDir returns the CSV sink directory, defaulting to "logs" if not set.
func (c *ScenarioConfig) CSVDir() string {
	if c.Sinks.CSV.Dir == "" {
		return "logs"
	}
	return c.Sinks.CSV.Dir
}

// TopicPrefix returns the MQTT topic prefix, defaulting to "hydronet"
// if not set.
func (c *ScenarioConfig) TopicPrefix() string {
	if c.Sinks.MQTT.TopicPrefix == "" {
		return "hydronet"
	}
	return c.Sinks.MQTT.TopicPrefix
}

// LoadScenario reads and parses a scenario.yaml.
func LoadScenario(path string) (*ScenarioConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ScenarioConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario.yaml version: %d", cfg.Version)
	}

	cfg.dir = filepath.Dir(path)
	return &cfg, nil
}

// Build constructs the simulation nodes in declaration order, which is
// also the order used to break evaluation-order ties.
func (c *ScenarioConfig) Build() ([]sim.Node, error) {
	if len(c.Network.Nodes) == 0 {
		return nil, fmt.Errorf("network declares no nodes")
	}

	nodes := make([]sim.Node, 0, len(c.Network.Nodes))
	for _, nc := range c.Network.Nodes {
		node, err := c.buildNode(nc)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.Name, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (c *ScenarioConfig) buildNode(nc NodeConfig) (sim.Node, error) {
	switch strings.ToLower(nc.Type) {
	case "inflow":
		data, err := c.inflowSeries(nc)
		if err != nil {
			return nil, err
		}
		return sim.NewInflowAt(nc.Name, data, nc.Start)
	case "storage":
		r, err := buildReservoir(nc.Name, nc.Reservoir)
		if err != nil {
			return nil, err
		}
		return sim.NewStorage(nc.Name, nc.Senders, r), nil
	case "outlet":
		return sim.NewOutlet(nc.Name, nc.Senders), nil
	case "":
		return nil, fmt.Errorf("missing node type")
	default:
		return nil, fmt.Errorf("unknown node type %q", nc.Type)
	}
}

func (c *ScenarioConfig) inflowSeries(nc NodeConfig) ([]float64, error) {
	switch {
	case len(nc.Data) > 0 && nc.DataFile != "":
		return nil, fmt.Errorf("data and data_file are mutually exclusive")
	case len(nc.Data) > 0:
		return nc.Data, nil
	case nc.DataFile != "":
		column := nc.Column
		if column == "" {
			column = nc.Name
		}
		path := nc.DataFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.dir, path)
		}
		return readSeries(path, column)
	default:
		return nil, fmt.Errorf("inflow needs data or data_file")
	}
}

func buildReservoir(name string, rc *ReservoirConfig) (*sim.Reservoir, error) {
	if rc == nil {
		return nil, nil // NewStorage falls back to the default reservoir
	}

	var gates []sim.Gate
	if rc.Outlets != nil {
		gates = make([]sim.Gate, len(rc.Outlets))
		for i, oc := range rc.Outlets {
			rr := sim.UnlimitedRelease()
			rr.Min = oc.MinRelease
			if oc.MaxRelease > 0 {
				rr.Max = oc.MaxRelease
			}
			gates[i] = sim.Gate{Name: oc.Name, Height: oc.Height, Range: rr}
		}
	}

	policy, err := buildPolicy(rc.Policy)
	if err != nil {
		return nil, err
	}

	return sim.NewReservoir(sim.ReservoirConfig{
		Name:          name,
		Capacity:      rc.Capacity,
		Gates:         gates,
		Mode:          sim.Mode(strings.ToLower(rc.Mode)),
		Policy:        policy,
		InitialVolume: rc.InitialVolume,
	})
}

func buildPolicy(pc *PolicyConfig) (sim.OperatingPolicy, error) {
	if pc == nil {
		return nil, nil
	}
	switch strings.ToLower(pc.Type) {
	case "constant":
		return sim.ConstantTarget(pc.Target), nil
	case "schedule":
		return sim.ScheduleTarget(pc.Schedule), nil
	case "curve":
		curve, err := buildCurve(pc)
		if err != nil {
			return nil, err
		}
		return sim.NewCurvePolicy(curve), nil
	case "forecast":
		return sim.NewForecastTarget(pc.Decay, pc.Window), nil
	default:
		return nil, fmt.Errorf("unknown policy type %q", pc.Type)
	}
}

func buildCurve(pc *PolicyConfig) (sim.Curve, error) {
	switch strings.ToLower(pc.Curve) {
	case "linear":
		return sim.Linear(pc.Slope, pc.Intercept), nil
	case "exponential":
		return sim.Exponential(pc.Base, pc.Rate), nil
	case "sigmoid":
		return sim.UnitSigmoid(pc.Steepness), nil
	default:
		return nil, fmt.Errorf("unknown curve %q", pc.Curve)
	}
}

// readSeries reads one named column from a CSV file whose first row is
// the header.
func readSeries(path, column string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	col := -1
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in %s", column, path)
	}

	data := make([]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		data = append(data, v)
	}
	return data, nil
}
