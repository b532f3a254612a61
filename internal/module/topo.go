// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package module

// validateDependencies checks that every declared dependency is registered.
// Modules are checked in the given order, dependencies in declared order, so
// the first reported error is stable.
func validateDependencies(names []string, deps map[string][]string) error {
	for _, name := range names {
		for _, dep := range deps[name] {
			if _, ok := deps[dep]; !ok {
				return &MissingDependencyError{Module: name, Dependency: dep}
			}
		}
	}
	return nil
}

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

type frame struct {
	name string
	next int
}

// initOrder returns a topological order of names in which every module comes
// after its dependencies. Roots are taken in the order of names and
// dependencies in declared order, so the result is deterministic. The walk is
// iterative; dependency chains of any depth are fine.
func initOrder(names []string, deps map[string][]string) ([]string, error) {
	state := make(map[string]visitState, len(names))
	order := make([]string, 0, len(names))

	for _, root := range names {
		if state[root] != unvisited {
			continue
		}

		stack := []frame{{name: root}}
		state[root] = visiting

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := deps[top.name]

			if top.next >= len(children) {
				state[top.name] = visited
				order = append(order, top.name)
				stack = stack[:len(stack)-1]
				continue
			}

			child := children[top.next]
			top.next++

			switch state[child] {
			case visited:
			case visiting:
				return nil, &CycleError{Path: cyclePath(stack, child)}
			default:
				state[child] = visiting
				stack = append(stack, frame{name: child})
			}
		}
	}
	return order, nil
}

// cyclePath extracts the cycle closed by an edge to target from the DFS stack.
func cyclePath(stack []frame, target string) []string {
	start := 0
	for i, f := range stack {
		if f.name == target {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.name)
	}
	return append(path, target)
}
