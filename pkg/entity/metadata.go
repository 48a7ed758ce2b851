package entity

import "maps"

// MetadataType tags which owner a metadata record belongs to.
type MetadataType string

const (
	MetadataCommon    MetadataType = "COMMON"
	MetadataSpecified MetadataType = "SPECIFIED"
)

// MetadataOwner is either CommonOwner or SpecifiedOwner.
type MetadataOwner interface {
	Type() MetadataType
	Contract() int64
	isMetadataOwner()
}

// CommonOwner marks metadata shared by every token of a contract.
type CommonOwner struct {
	ContractID int64
}

func (CommonOwner) Type() MetadataType { return MetadataCommon }
func (o CommonOwner) Contract() int64 { return o.ContractID }
func (CommonOwner) isMetadataOwner() {}

// SpecifiedOwner marks metadata that belongs to a single token.
type SpecifiedOwner struct {
	ContractID int64
	TokenID    int64
}

func (SpecifiedOwner) Type() MetadataType { return MetadataSpecified }
func (o SpecifiedOwner) Contract() int64 { return o.ContractID }
func (SpecifiedOwner) isMetadataOwner() {}

// Metadata is a JSON document attached to a contract or a token.
type Metadata struct {
	ID     int64
	Status Status
	Owner  MetadataOwner
	Fields map[string]any
}

// Type returns the owner tag, COMMON when no owner is set.
func (m *Metadata) Type() MetadataType {
	if m.Owner == nil {
		return MetadataCommon
	}
	return m.Owner.Type()
}

// TokenID returns the owning token for SPECIFIED metadata.
func (m *Metadata) TokenID() (int64, bool) {
	if o, ok := m.Owner.(SpecifiedOwner); ok {
		return o.TokenID, true
	}
	return 0, false
}

// CloneFor copies the fields into a new, unsaved record owned by owner.
func (m *Metadata) CloneFor(owner MetadataOwner) *Metadata {
	return &Metadata{
		Status: StatusCreated,
		Owner:  owner,
		Fields: maps.Clone(m.Fields),
	}
}

// ApplyOverrides overwrites fields that already exist. Unknown keys are
// ignored. It reports whether anything changed.
func (m *Metadata) ApplyOverrides(overrides map[string]any) bool {
	changed := false
	for k, v := range overrides {
		if _, ok := m.Fields[k]; !ok {
			continue
		}
		m.Fields[k] = v
		changed = true
	}
	return changed
}
