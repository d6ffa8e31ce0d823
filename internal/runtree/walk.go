package runtree

import (
	"os"
	"path/filepath"
)

// LogAddresses enumerates every level of a run that can carry logs: the
// run itself, each stage in sequence order, and any flavor and step
// directories found beneath them. Levels are returned run-first, then
// depth-first per stage.
func (s *Store) LogAddresses(runID string) ([]Address, error) {
	stages, err := s.StageAddresses(runID)
	if err != nil {
		return nil, err
	}

	addrs := []Address{{RunID: runID}}
	for _, stageAddr := range stages {
		addrs = append(addrs, stageAddr)

		flavorsDir := filepath.Join(s.levelDir(stageAddr), FlavorsDir)
		for _, flavor := range subdirs(flavorsDir) {
			flavorAddr := Address{RunID: runID, Stage: stageAddr.Stage, Flavor: flavor}
			addrs = append(addrs, flavorAddr)

			stepsDir := filepath.Join(s.levelDir(flavorAddr), StepsDir)
			for _, step := range subdirs(stepsDir) {
				addrs = append(addrs, Address{RunID: runID, Stage: stageAddr.Stage, Flavor: flavor, Step: step})
			}
		}
	}
	return addrs, nil
}

func subdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
