package wmbs

import (
	"context"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// Location is an execution site.
type Location struct {
	ID       int64
	SiteName string
	JobSlots int
}

// Locations is the site repository.
type Locations struct {
	db *storage.DB
}

// Register records a site. Registering an existing site is a no-op; the
// first slot count is kept.
func (r *Locations) Register(ctx context.Context, name string, slots int) error {
	const op = "Locations.Register"
	if err := requireName(op, "site name", name); err != nil {
		return err
	}
	if slots < 0 {
		return errdefs.InvalidArgument(op, "job slots %d for %q is negative", slots, name)
	}
	_, err := r.db.InsertIfAbsent(ctx, dialect.LocationNew, map[string]any{
		"location": name,
		"slots":    slots,
	})
	return err
}

// Get loads a site by name.
func (r *Locations) Get(ctx context.Context, name string) (Location, bool, error) {
	if err := requireName("Locations.Get", "site name", name); err != nil {
		return Location{}, false, err
	}
	var loc Location
	found, err := r.db.QueryRow(ctx, dialect.LocationGet, map[string]any{"location": name},
		&loc.ID, &loc.SiteName, &loc.JobSlots)
	if err != nil || !found {
		return Location{}, false, err
	}
	return loc, true, nil
}

// ID resolves a site name.
func (r *Locations) ID(ctx context.Context, name string) (int64, bool, error) {
	if err := requireName("Locations.ID", "site name", name); err != nil {
		return 0, false, err
	}
	return r.db.LookupID(ctx, dialect.LocationID, map[string]any{"location": name})
}

// Delete removes a site.
func (r *Locations) Delete(ctx context.Context, name string) (bool, error) {
	if err := requireName("Locations.Delete", "site name", name); err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, dialect.LocationDelete, map[string]any{"location": name})
	return n > 0, err
}
