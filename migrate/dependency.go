package migrate

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
)

func parseDependencies(f io.ReadCloser) ([]string, error) {
	defer f.Close()

	const dependencyHeader = "-- dependsOn: "
	var dependencies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dependencyHeader) {
			break
		}

		line = strings.TrimPrefix(line, dependencyHeader)
		deps := strings.Split(line, ",")
		dependencies = append(dependencies, lo.Map(deps, func(x string, _ int) string {
			return strings.TrimSpace(x)
		})...)
	}

	return dependencies, scanner.Err()
}

// DependencyMap holds path -> dependents
type DependencyMap map[string][]string

// getDependencyTree inverts the dependsOn headers of the given script sets,
// keyed by directory, into a map of script -> scripts that depend on it.
//
// example: if views/a.sql dependsOn functions/b.sql it returns
//
//	{
//		functions/b.sql: []string{views/a.sql},
//	}
func getDependencyTree(dirs map[string]map[string]string) (DependencyMap, error) {
	graph := make(DependencyMap)

	for _, dir := range lo.Keys(dirs) {
		for name, content := range dirs[dir] {
			dependencies, err := parseDependencies(io.NopCloser(strings.NewReader(content)))
			if err != nil {
				return nil, err
			}

			for _, dependency := range dependencies {
				graph[dependency] = append(graph[dependency], dir+"/"+name)
			}
		}
	}

	for k := range graph {
		sort.Strings(graph[k])
	}
	return graph, nil
}

// Dependents returns every script that has to be re-run because one of the
// executed scripts changed, following the graph transitively.
func (m DependencyMap) Dependents(executed ...string) []string {
	seen := map[string]bool{}
	queue := append([]string{}, executed...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, dependent := range m[next] {
			if !seen[dependent] {
				seen[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}

	out := lo.Keys(seen)
	sort.Strings(out)
	return out
}
