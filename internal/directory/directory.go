package directory

import (
	"fmt"
	"sort"
)

// ContractDefinition is the static definition of a tradeable contract.
// Immutable once registered.
type ContractDefinition struct {
	ContractID         uint32
	Name               string
	NotionalSize       int64 // COIN scale
	MarginRequirement  int64 // COIN scale, collateral per contract
	CollateralCurrency uint32
	InverseQuoted      bool
	IsOracle           bool
	ExpirationBlock    int64
}

// Directory resolves contract identifiers to their definitions. The matching
// engine treats it as an external collaborator: unknown ids are a rejected
// input, never a fatal condition.
type Directory struct {
	byID   map[uint32]*ContractDefinition
	byName map[string]uint32
}

func New() *Directory {
	return &Directory{
		byID:   make(map[uint32]*ContractDefinition),
		byName: make(map[string]uint32),
	}
}

// Register adds a contract definition. Re-registering an id is rejected:
// definitions are immutable once created.
func (d *Directory) Register(def *ContractDefinition) error {
	if def.ContractID == 0 {
		return fmt.Errorf("contract id must be non-zero")
	}
	if _, ok := d.byID[def.ContractID]; ok {
		return fmt.Errorf("contract %d already registered", def.ContractID)
	}
	if def.NotionalSize <= 0 || def.MarginRequirement <= 0 {
		return fmt.Errorf("contract %d: notional size and margin requirement must be positive", def.ContractID)
	}

	d.byID[def.ContractID] = def
	if def.Name != "" {
		d.byName[def.Name] = def.ContractID
	}
	return nil
}

// Resolve looks up a contract by id.
func (d *Directory) Resolve(contractID uint32) (*ContractDefinition, bool) {
	def, ok := d.byID[contractID]
	return def, ok
}

// ResolveByName looks up a contract by its registered name.
func (d *Directory) ResolveByName(name string) (*ContractDefinition, bool) {
	id, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return d.Resolve(id)
}

// ContractIDs returns all registered ids in ascending order.
func (d *Directory) ContractIDs() []uint32 {
	ids := make([]uint32, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
