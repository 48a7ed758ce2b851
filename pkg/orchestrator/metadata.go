package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

// imageField is the metadata key whose value is uploaded as an asset
const imageField = "image"

// MetadataStore is the subset of Store used for token metadata
type MetadataStore interface {
	CreateMetadata(ctx context.Context, metadata *entity.Metadata) error
	GetTokenMetadata(ctx context.Context, tokenID int64) (*entity.Metadata, error)
	UpdateMetadataFields(ctx context.Context, id int64, fields map[string]any) error
	SetTokenMetadata(ctx context.Context, tokenID, metadataID int64) error
}

// prepareMetadata copies the submitted fields and replaces the image
// reference with its uploaded URI when an uploader is configured.
func (o *orchestrator) prepareMetadata(ctx context.Context, fields map[string]any) (map[string]any, error) {
	out := maps.Clone(fields)
	ref, ok := out[imageField].(string)
	if !ok || ref == "" || o.uploader == nil {
		return out, nil
	}
	uri, err := o.uploader.Upload(ctx, ref)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to upload image: %w", err), "failed to upload metadata image")
	}
	out[imageField] = uri
	return out, nil
}

// MaterializeTokenMetadata gives token its own SPECIFIED metadata. The first
// call clones base (the contract's COMMON record) for the token; later calls
// update the token's record in place. Overrides only replace keys the record
// already has. A nil base with no existing record is a no-op.
func MaterializeTokenMetadata(
	ctx context.Context,
	st MetadataStore,
	token *entity.Token,
	base *entity.Metadata,
	overrides map[string]any,
) (*entity.Metadata, error) {
	existing, err := st.GetTokenMetadata(ctx, token.ID)
	switch {
	case err == nil:
		return updateInPlace(ctx, st, existing, overrides)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load metadata for token %d: %w", token.ID, err)
	}
	if base == nil {
		return nil, nil
	}

	specified := base.CloneFor(entity.SpecifiedOwner{ContractID: token.ContractID, TokenID: token.ID})
	specified.ApplyOverrides(overrides)
	err = st.CreateMetadata(ctx, specified)
	if errors.Is(err, store.ErrAlreadyExists) {
		// a concurrent mint of the same token created it first
		existing, err = st.GetTokenMetadata(ctx, token.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load metadata for token %d: %w", token.ID, err)
		}
		return updateInPlace(ctx, st, existing, overrides)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata for token %d: %w", token.ID, err)
	}
	if err := st.SetTokenMetadata(ctx, token.ID, specified.ID); err != nil {
		return nil, fmt.Errorf("failed to link metadata to token %d: %w", token.ID, err)
	}
	token.MetadataID = &specified.ID
	return specified, nil
}

func updateInPlace(ctx context.Context, st MetadataStore, m *entity.Metadata, overrides map[string]any) (*entity.Metadata, error) {
	if !m.ApplyOverrides(overrides) {
		return m, nil
	}
	if err := st.UpdateMetadataFields(ctx, m.ID, m.Fields); err != nil {
		return nil, fmt.Errorf("failed to update metadata %d: %w", m.ID, err)
	}
	return m, nil
}
