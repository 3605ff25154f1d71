// Package catalog loads and validates experiment definitions from YAML
// documents and keeps the in-memory definition store the scheduler and
// admin surface read from.
package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/types"
)

// ChangeSet is what one successful load changed, handed to registered
// listeners. Removed carries definition ids that no longer appear in
// the source.
type ChangeSet struct {
	Added   []*types.ExperimentDefinition
	Updated []*types.ExperimentDefinition
	Removed []string
}

func (c ChangeSet) empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Listener is notified after every load that changed the catalog.
type Listener func(ChangeSet)

// Catalog is the validated set of experiment definitions, keyed by id.
// Definitions are immutable once stored, an edit arrives as a whole new
// document with a bumped version.
type Catalog struct {
	validate *validator.Validate

	mu          sync.RWMutex
	definitions map[string]*types.ExperimentDefinition
	listeners   []Listener
}

func New() *Catalog {
	return &Catalog{
		validate:    validator.New(),
		definitions: make(map[string]*types.ExperimentDefinition),
	}
}

// Subscribe registers a listener for catalog changes. Listeners run
// synchronously on the loading goroutine.
func (c *Catalog) Subscribe(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// LoadFile loads every definition document from the given YAML file.
// The load is atomic, one invalid document rejects the whole file and
// leaves the catalog untouched.
func (c *Catalog) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Errorf("unable to open catalog file, %v", err)
	}
	defer file.Close()
	return c.Load(file)
}

// Load reads multi-document YAML from r and applies it to the catalog.
func (c *Catalog) Load(r io.Reader) error {
	incoming, err := c.parse(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	changes, err := c.diff(incoming)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	for _, definition := range incoming {
		c.definitions[definition.ID] = definition
	}
	for _, removed := range changes.Removed {
		delete(c.definitions, removed)
	}
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if changes.empty() {
		return nil
	}
	log.InfoWithValues("[Catalog]: Definitions loaded", map[string]interface{}{
		"Added":   len(changes.Added),
		"Updated": len(changes.Updated),
		"Removed": len(changes.Removed),
	})
	for _, listener := range listeners {
		listener(changes)
	}
	return nil
}

// parse decodes and validates every document. Errors carry the
// document's position so a bad catalog is quick to fix.
func (c *Catalog) parse(r io.Reader) ([]*types.ExperimentDefinition, error) {
	decoder := yaml.NewDecoder(r)
	var parsed []*types.ExperimentDefinition
	seen := make(map[string]bool)
	for index := 0; ; index++ {
		var definition types.ExperimentDefinition
		err := decoder.Decode(&definition)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Reason:    fmt.Sprintf("document %d: unable to decode, %v", index, err),
			}
		}
		if err := c.validateDefinition(&definition); err != nil {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Target:    definition.ID,
				Reason:    fmt.Sprintf("document %d: %v", index, err),
			}
		}
		if seen[definition.ID] {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Target:    definition.ID,
				Reason:    fmt.Sprintf("document %d: duplicate definition id", index),
			}
		}
		seen[definition.ID] = true
		parsed = append(parsed, &definition)
	}
	return parsed, nil
}

// validateDefinition applies the struct tags plus the invariants the
// tags cannot express.
func (c *Catalog) validateDefinition(definition *types.ExperimentDefinition) error {
	if err := c.validate.Struct(definition); err != nil {
		return err
	}
	if !validActionType(definition.ActionType) {
		return errors.Errorf("unknown action type '%s'", definition.ActionType)
	}
	if definition.Duration <= 0 {
		return errors.Errorf("duration must be positive")
	}
	if !definition.Schedule.Type.Valid() {
		return errors.Errorf("schedule type must be one-time or recurring")
	}
	if definition.Schedule.Type == types.ScheduleOneTime && definition.Schedule.FireAt.IsZero() {
		return errors.Errorf("a one-time schedule needs fireAt")
	}
	if definition.Schedule.Type == types.ScheduleRecurring && definition.Schedule.Interval <= 0 && definition.Schedule.TimeOfDay == "" {
		return errors.Errorf("a recurring schedule needs an interval or a time of day")
	}
	for _, breaker := range definition.Safety.CircuitBreakers {
		if !breaker.Action.Valid() {
			return errors.Errorf("circuit breaker '%s' has unknown action '%s'", breaker.Name, breaker.Action)
		}
	}
	for _, monitor := range definition.Safety.ResourceMonitors {
		if !monitor.Action.Valid() {
			return errors.Errorf("resource monitor '%s' has unknown action '%s'", monitor.Resource, monitor.Action)
		}
	}
	for _, check := range definition.Safety.DependencyChecks {
		if !check.Action.Valid() {
			return errors.Errorf("dependency check '%s' has unknown action '%s'", check.DependencyID, check.Action)
		}
	}
	return nil
}

func validActionType(actionType types.ActionType) bool {
	switch actionType {
	case types.InstanceTerminate, types.NetworkLatency, types.ResourceExhaust, types.DependencyFailure, types.QueueDisruption:
		return true
	}
	return false
}

// diff computes the change set of applying incoming, called with the
// lock held. A version that goes backwards rejects the load.
func (c *Catalog) diff(incoming []*types.ExperimentDefinition) (ChangeSet, error) {
	var changes ChangeSet
	present := make(map[string]bool, len(incoming))
	for _, definition := range incoming {
		present[definition.ID] = true
		existing, ok := c.definitions[definition.ID]
		switch {
		case !ok:
			changes.Added = append(changes.Added, definition)
		case definition.Version > existing.Version:
			changes.Updated = append(changes.Updated, definition)
		case definition.Version < existing.Version:
			return ChangeSet{}, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Target:    definition.ID,
				Reason:    fmt.Sprintf("version went backwards, catalog has v%d but the file carries v%d", existing.Version, definition.Version),
			}
		}
	}
	for id := range c.definitions {
		if !present[id] {
			changes.Removed = append(changes.Removed, id)
		}
	}
	sort.Strings(changes.Removed)
	return changes, nil
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*types.ExperimentDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	definition, ok := c.definitions[id]
	return definition, ok
}

// All returns every definition, sorted by id.
func (c *Catalog) All() []*types.ExperimentDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]*types.ExperimentDefinition, 0, len(c.definitions))
	for _, definition := range c.definitions {
		all = append(all, definition)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
