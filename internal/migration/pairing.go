package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rflorenc/profilemig/internal/models"
)

// Resolved holds the inventory records of both hosts and the pair built
// from them.
type Resolved struct {
	Pair   models.MigrationPair
	Source models.Device
	Target models.Device
}

// Pairing resolves hosts and maintains the computer association.
type Pairing struct {
	Site     Site
	Liveness LivenessWaiter
	Behavior models.Behavior
	Log      zerolog.Logger
}

// Resolve looks both hosts up in inventory. It performs no mutation and
// returns ErrHostNotFound naming every missing host.
func (p *Pairing) Resolve(ctx context.Context, source, target string) (*Resolved, error) {
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	if strings.EqualFold(source, target) {
		return nil, fmt.Errorf("source and target are the same host %q", source)
	}

	var missing []string
	lookup := func(name string) (*models.Device, error) {
		dev, err := p.Site.FindDevice(ctx, name)
		if err != nil {
			return nil, err
		}
		if dev == nil {
			missing = append(missing, name)
			return nil, nil
		}
		p.Log.Info().Str("host", name).Int("resource_id", dev.ResourceID).Msg("found in inventory")
		return dev, nil
	}

	src, err := lookup(source)
	if err != nil {
		return nil, err
	}
	dst, err := lookup(target)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(missing, ", "), ErrHostNotFound)
	}

	return &Resolved{
		Pair: models.MigrationPair{
			SourceHost:       src.Name,
			TargetHost:       dst.Name,
			Behavior:         p.Behavior,
			SourceResourceID: src.ResourceID,
			TargetResourceID: dst.ResourceID,
		},
		Source: *src,
		Target: *dst,
	}, nil
}

// Pair waits for both hosts to be reachable, removes every association
// that names either host, then creates a single fresh association.
func (p *Pairing) Pair(ctx context.Context, r *Resolved) error {
	for _, host := range []string{r.Pair.SourceHost, r.Pair.TargetHost} {
		if err := p.Liveness.Wait(ctx, host); err != nil {
			return err
		}
	}

	existing, err := p.Site.ListAssociations(ctx, r.Pair.SourceHost, r.Pair.TargetHost)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if !a.References(r.Pair.SourceHost) && !a.References(r.Pair.TargetHost) {
			continue
		}
		p.Log.Info().Str("source", a.SourceName).Str("restore", a.RestoreName).Msg("removing existing association")
		if err := p.Site.DeleteAssociation(ctx, a); err != nil {
			return err
		}
	}

	if err := p.Site.CreateAssociation(ctx, r.Pair); err != nil {
		return err
	}
	p.Log.Info().
		Str("source", r.Pair.SourceHost).
		Str("target", r.Pair.TargetHost).
		Stringer("behavior", r.Pair.Behavior).
		Msg("association created")
	return nil
}
