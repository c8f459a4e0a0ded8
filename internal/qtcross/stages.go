package qtcross

import "fmt"

// Stage is one step of the two-phase pipeline, in execution order.
type Stage int

const (
	HostConfigure Stage = iota
	HostBuild
	HostInstall
	CrossConfigure
	CrossBuild
	CrossInstall
	Pack
)

// Stages lists every stage in the order a pipeline runs them.
var Stages = []Stage{HostConfigure, HostBuild, HostInstall, CrossConfigure, CrossBuild, CrossInstall, Pack}

var stageNames = map[Stage]string{
	HostConfigure:  "host-configure",
	HostBuild:      "host-build",
	HostInstall:    "host-install",
	CrossConfigure: "cross-configure",
	CrossBuild:     "cross-build",
	CrossInstall:   "cross-install",
	Pack:           "pack",
}

var stageTitles = map[Stage]string{
	HostConfigure:  "Host configure",
	HostBuild:      "Host build",
	HostInstall:    "Host install",
	CrossConfigure: "Cross configure",
	CrossBuild:     "Cross build",
	CrossInstall:   "Cross install",
	Pack:           "Pack",
}

// String is the stage's short name, also used for its log file.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Title is the human-readable stage name.
func (s Stage) Title() string {
	if t, ok := stageTitles[s]; ok {
		return t
	}
	return s.String()
}

// ParseStage accepts a stage's short name.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// State is the orchestrator's position in the pipeline.
type State int

const (
	StateInit State = iota
	StateHostConfigured
	StateHostBuilt
	StateHostInstalled
	StateCrossConfigured
	StateCrossBuilt
	StateCrossInstalled
	StatePackaged
	StateFailed
)

var stateNames = [...]string{
	StateInit:            "init",
	StateHostConfigured:  "host-configured",
	StateHostBuilt:       "host-built",
	StateHostInstalled:   "host-installed",
	StateCrossConfigured: "cross-configured",
	StateCrossBuilt:      "cross-built",
	StateCrossInstalled:  "cross-installed",
	StatePackaged:        "packaged",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions maps each stage to the state it requires and the state it produces.
var transitions = map[Stage]struct{ from, to State }{
	HostConfigure:  {StateInit, StateHostConfigured},
	HostBuild:      {StateHostConfigured, StateHostBuilt},
	HostInstall:    {StateHostBuilt, StateHostInstalled},
	CrossConfigure: {StateHostInstalled, StateCrossConfigured},
	CrossBuild:     {StateCrossConfigured, StateCrossBuilt},
	CrossInstall:   {StateCrossBuilt, StateCrossInstalled},
	Pack:           {StateCrossInstalled, StatePackaged},
}
