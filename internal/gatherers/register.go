// Package gatherers provides gatherer types beyond the built-in HTTP gatherer:
// JSONPath extraction, JavaScript transforms and static fixtures.
package gatherers

import (
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

// RegisterBuiltins registers the jsonpath, script and static gatherer types.
func RegisterBuiltins(services *scattergather.Services) error {
	factories := []struct {
		name    string
		factory scattergather.GathererFactory
	}{
		{JSONPathType, JSONPathFactory},
		{ScriptType, ScriptFactory},
		{StaticType, StaticFactory},
	}
	for _, f := range factories {
		if err := services.AddGathererFactory(f.name, f.factory); err != nil {
			return err
		}
	}
	return nil
}
