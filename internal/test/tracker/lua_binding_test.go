//go:build scenario

package tracker

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

const scenarioTypeName = "scenario"

// Scenario is a scripted tracker session: an ordered list of steps the
// runner executes against a live MCP session.
type Scenario struct {
	Name  string
	Steps []Step
}

type Step struct {
	Kind string
	Args map[string]any
}

func (s *Scenario) add(kind string, args map[string]any) {
	if args == nil {
		args = map[string]any{}
	}
	s.Steps = append(s.Steps, Step{Kind: kind, Args: args})
}

// loadScenarioFromFile runs a Lua script and takes the Scenario userdata its
// final expression returns. The file name doubles as the scenario name when
// the script leaves it blank.
func loadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	installDSL(state)

	base := filepath.Base(path)
	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load %s: %w", base, err)
	}
	// One return value: the scenario under construction.
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run %s: %w", base, err)
	}
	sc, ok := state.ToUserData(-1).(*Scenario)
	state.Pop(1)
	if !ok || sc == nil {
		return nil, fmt.Errorf("%s: script must return Scenario.new(...)", base)
	}
	if strings.TrimSpace(sc.Name) == "" {
		sc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return sc, nil
}

// installDSL exposes Scenario.new and the step methods to scripts.
func installDSL(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods(), 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: newScenario}}, 0)
	state.SetGlobal("Scenario")
}

func newScenario(state *lua.State) int {
	sc := &Scenario{Name: lua.OptString(state, 1, "")}
	state.PushUserData(sc)
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

// Steps whose only argument is a table of fields share one implementation;
// the remaining steps take positional string arguments.
var tableSteps = []string{
	"track",
	"turn",
	"expect",
	"expect_events",
	"expect_chapter",
	"read_events",
}

func scenarioMethods() []lua.RegistryFunction {
	fns := make([]lua.RegistryFunction, 0, len(tableSteps)+3)
	for _, kind := range tableSteps {
		fns = append(fns, lua.RegistryFunction{Name: kind, Function: tableStep(kind)})
	}
	return append(fns,
		lua.RegistryFunction{Name: "chat", Function: chatStep},
		lua.RegistryFunction{Name: "respond", Function: respondStep},
		lua.RegistryFunction{Name: "seed_state", Function: seedStateStep},
	)
}

func tableStep(kind string) func(*lua.State) int {
	return func(state *lua.State) int {
		sc := currentScenario(state)
		lua.CheckType(state, 2, lua.TypeTable)
		sc.add(kind, mapAt(state, 2))
		return 0
	}
}

func chatStep(state *lua.State) int {
	sc := currentScenario(state)
	sc.add("chat", map[string]any{
		"chat_id": lua.CheckString(state, 2),
		"title":   lua.OptString(state, 3, ""),
	})
	return 0
}

func respondStep(state *lua.State) int {
	sc := currentScenario(state)
	sc.add("respond", map[string]any{"json": lua.CheckString(state, 2)})
	return 0
}

func seedStateStep(state *lua.State) int {
	sc := currentScenario(state)
	sc.add("seed_state", map[string]any{"state_json": lua.CheckString(state, 2)})
	return 0
}

func currentScenario(state *lua.State) *Scenario {
	sc, ok := lua.CheckUserData(state, 1, scenarioTypeName).(*Scenario)
	if !ok || sc == nil {
		lua.ArgumentError(state, 1, "scenario expected")
	}
	return sc
}

// mapAt converts the table at index to a Go map, keeping string keys only.
func mapAt(state *lua.State, index int) map[string]any {
	fields := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return fields
	}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			fields[key] = valueAt(state, -1)
		}
		state.Pop(1)
	}
	return fields
}

func valueAt(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		// Lua numbers are floats; whole values read back as Go ints.
		value, _ := state.ToNumber(index)
		if value == math.Trunc(value) {
			return int(value)
		}
		return value
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableAt(state, index)
	case lua.TypeUserData:
		return state.ToUserData(index)
	default:
		return nil
	}
}

// tableAt reads a nested table in one pass, returning a []any when its keys
// form the sequence 1..n and a string-keyed map otherwise.
func tableAt(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	fields := map[string]any{}
	items := map[int]any{}
	maxIdx := 0
	state.PushNil()
	for state.Next(index) {
		switch state.TypeOf(-2) {
		case lua.TypeString:
			key, _ := state.ToString(-2)
			fields[key] = valueAt(state, -1)
		case lua.TypeNumber:
			if i, ok := state.ToInteger(-2); ok && i > 0 {
				items[i] = valueAt(state, -1)
				if i > maxIdx {
					maxIdx = i
				}
			}
		}
		state.Pop(1)
	}
	if len(fields) == 0 && maxIdx > 0 && maxIdx == len(items) {
		seq := make([]any, maxIdx)
		for i, v := range items {
			seq[i-1] = v
		}
		return seq
	}
	return fields
}
