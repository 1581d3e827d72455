package application

import (
	"context"
	"errors"
	"fmt"

	"provindex/internal/domain"

	"golang.org/x/sync/errgroup"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetSource interface {
	Asset(ctx context.Context, id uint64) (domain.Asset, error)
	AttributeNames(ctx context.Context, id uint64) ([]string, error)
	Attribute(ctx context.Context, id uint64, name string) (domain.AttributeRecord, error)
	Composition(ctx context.Context, id uint64) ([]domain.CompositionEdge, error)
}

// AssetReader resolves an asset together with its attributes and composition edges.
type AssetReader struct {
	source AssetSource
}

func NewAssetReader(source AssetSource) (*AssetReader, error) {
	if source == nil {
		return nil, errors.New("asset source is required")
	}
	return &AssetReader{source: source}, nil
}

// Read issues the record, attribute and composition reads concurrently. The result is
// all-or-nothing: if any read fails the whole asset fails.
func (r *AssetReader) Read(ctx context.Context, id uint64) (domain.AssetDetails, error) {
	var (
		asset       domain.Asset
		attributes  []domain.AttributeRecord
		composition []domain.CompositionEdge
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		record, err := r.source.Asset(gctx, id)
		if err != nil {
			return fmt.Errorf("asset %d: %w", id, err)
		}
		asset = record
		return nil
	})
	g.Go(func() error {
		records, err := r.readAttributes(gctx, id)
		if err != nil {
			return err
		}
		attributes = records
		return nil
	})
	g.Go(func() error {
		edges, err := r.source.Composition(gctx, id)
		if err != nil {
			return fmt.Errorf("asset %d composition: %w", id, err)
		}
		composition = edges
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.AssetDetails{}, err
	}

	if attributes == nil {
		attributes = []domain.AttributeRecord{}
	}
	if composition == nil {
		composition = []domain.CompositionEdge{}
	}
	return domain.AssetDetails{
		Asset:       asset,
		Attributes:  attributes,
		Composition: composition,
	}, nil
}

func (r *AssetReader) readAttributes(ctx context.Context, id uint64) ([]domain.AttributeRecord, error) {
	names, err := r.source.AttributeNames(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("asset %d attribute names: %w", id, err)
	}
	records := make([]domain.AttributeRecord, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			record, err := r.source.Attribute(gctx, id, name)
			if err != nil {
				return fmt.Errorf("asset %d attribute %q: %w", id, name, err)
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
