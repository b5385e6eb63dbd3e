package pivot

import "github.com/fio-analyzer/server/pkg/models"

// Flatten expands device groups into one flat slice of runs with the
// device identity stamped onto every run. Groups without configurations
// contribute nothing. The input is copied, never mutated.
func Flatten(groups []models.DeviceGroup) []models.TestRun {
	n := 0
	for _, g := range groups {
		n += len(g.Configurations)
	}
	out := make([]models.TestRun, 0, n)
	for _, g := range groups {
		for _, run := range g.Configurations {
			run.Hostname = g.Hostname
			run.Protocol = g.Protocol
			run.DriveModel = g.DriveModel
			run.DriveType = g.DriveType
			out = append(out, run)
		}
	}
	return out
}
