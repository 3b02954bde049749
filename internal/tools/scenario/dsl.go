// Package scenario runs Lua-scripted player flows against a live arena
// server over its WebSocket API.
package scenario

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

const scenarioTypeName = "scenario"

// Scenario is a scripted sequence of arena actions and expectations.
type Scenario struct {
	Name  string
	Steps []Step
}

// Step is one scripted action with its parsed arguments.
type Step struct {
	Kind string
	Args map[string]any
}

// LoadScenarioFromFile runs a Lua script and extracts the Scenario it
// returns. The scenario name falls back to the file name.
func LoadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerLuaTypes(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("scenario script must return Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	scenario, ok := ud.(*Scenario)
	if !ok || scenario == nil {
		return nil, fmt.Errorf("scenario script returned invalid Scenario")
	}
	if strings.TrimSpace(scenario.Name) == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return scenario, nil
}

func registerLuaTypes(state *lua.State) {
	registerScenarioType(state)
	registerScenarioConstructor(state)
}

func registerScenarioType(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerScenarioConstructor(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, scenarioConstructor, 0)
	state.SetGlobal("Scenario")
}

var scenarioConstructor = []lua.RegistryFunction{
	{Name: "new", Function: scenarioNew},
}

func scenarioNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	scenario := &Scenario{Name: name}
	state.PushUserData(scenario)
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "player", Function: scenarioPlayer},
	{Name: "queue", Function: scenarioQueue},
	{Name: "create_private", Function: scenarioCreatePrivate},
	{Name: "join_private", Function: scenarioJoinPrivate},
	{Name: "create_ai", Function: scenarioCreateAI},
	{Name: "invite", Function: scenarioInvite},
	{Name: "move", Function: scenarioMove},
	{Name: "leave", Function: scenarioLeave},
	{Name: "disconnect", Function: scenarioDisconnect},
	{Name: "same_game", Function: scenarioSameGame},
	{Name: "await_start", Function: scenarioAwaitStart},
	{Name: "await_invite", Function: scenarioAwaitInvite},
	{Name: "await_status", Function: scenarioAwaitStatus},
	{Name: "await_point", Function: scenarioAwaitPoint},
	{Name: "await_end", Function: scenarioAwaitEnd},
	{Name: "create_tournament", Function: scenarioCreateTournament},
	{Name: "join_tournament", Function: scenarioJoinTournament},
	{Name: "start_tournament", Function: scenarioStartTournament},
	{Name: "await_match", Function: scenarioAwaitMatch},
	{Name: "await_champion", Function: scenarioAwaitChampion},
}

// playerStep appends a step whose second argument names the acting player and
// whose optional third argument is a table of extras.
func playerStep(state *lua.State, kind string) int {
	scenario := checkScenario(state)
	name := lua.CheckString(state, 2)
	data := map[string]any{"player": name}
	for key, value := range optionalTable(state, 3) {
		data[key] = value
	}
	appendStep(scenario, kind, data)
	return 0
}

func scenarioPlayer(state *lua.State) int           { return playerStep(state, "player") }
func scenarioQueue(state *lua.State) int            { return playerStep(state, "queue") }
func scenarioCreatePrivate(state *lua.State) int    { return playerStep(state, "create_private") }
func scenarioJoinPrivate(state *lua.State) int      { return playerStep(state, "join_private") }
func scenarioCreateAI(state *lua.State) int         { return playerStep(state, "create_ai") }
func scenarioLeave(state *lua.State) int            { return playerStep(state, "leave") }
func scenarioDisconnect(state *lua.State) int       { return playerStep(state, "disconnect") }
func scenarioAwaitStart(state *lua.State) int       { return playerStep(state, "await_start") }
func scenarioAwaitInvite(state *lua.State) int      { return playerStep(state, "await_invite") }
func scenarioAwaitPoint(state *lua.State) int       { return playerStep(state, "await_point") }
func scenarioAwaitEnd(state *lua.State) int         { return playerStep(state, "await_end") }
func scenarioCreateTournament(state *lua.State) int { return playerStep(state, "create_tournament") }
func scenarioJoinTournament(state *lua.State) int   { return playerStep(state, "join_tournament") }
func scenarioStartTournament(state *lua.State) int  { return playerStep(state, "start_tournament") }
func scenarioAwaitMatch(state *lua.State) int       { return playerStep(state, "await_match") }
func scenarioAwaitChampion(state *lua.State) int    { return playerStep(state, "await_champion") }

func scenarioInvite(state *lua.State) int {
	scenario := checkScenario(state)
	data := map[string]any{
		"player": lua.CheckString(state, 2),
		"target": lua.CheckString(state, 3),
	}
	appendStep(scenario, "invite", data)
	return 0
}

func scenarioMove(state *lua.State) int {
	scenario := checkScenario(state)
	data := map[string]any{
		"player":    lua.CheckString(state, 2),
		"direction": lua.CheckString(state, 3),
	}
	appendStep(scenario, "move", data)
	return 0
}

func scenarioAwaitStatus(state *lua.State) int {
	scenario := checkScenario(state)
	data := map[string]any{
		"player": lua.CheckString(state, 2),
		"status": lua.CheckString(state, 3),
	}
	appendStep(scenario, "await_status", data)
	return 0
}

func scenarioSameGame(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	appendStep(scenario, "same_game", map[string]any{"players": tableToGo(state, 2)})
	return 0
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scenario, ok := ud.(*Scenario); ok && scenario != nil {
		return scenario
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func appendStep(scenario *Scenario, kind string, data map[string]any) {
	if scenario == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	scenario.Steps = append(scenario.Steps, Step{Kind: kind, Args: data})
}

func optionalTable(state *lua.State, index int) map[string]any {
	if state.IsNoneOrNil(index) || state.TypeOf(index) != lua.TypeTable {
		return map[string]any{}
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	if state.TypeOf(index) != lua.TypeTable {
		return nil
	}

	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}

	return tableToMap(state, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
