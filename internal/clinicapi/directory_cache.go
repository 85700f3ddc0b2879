package clinicapi

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
)

const (
	clinicsKey          = "clinics"
	practitionersPrefix = "practitioners:"
)

// CachedDirectory memoizes the clinic and practitioner collections, which
// do not change during a session. Slots are never cached here.
type CachedDirectory struct {
	next  appointment.Directory
	cache *cache.Cache
}

func NewCachedDirectory(next appointment.Directory, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (d *CachedDirectory) FetchClinics(ctx context.Context) ([]appointment.Clinic, error) {
	if v, ok := d.cache.Get(clinicsKey); ok {
		return append([]appointment.Clinic(nil), v.([]appointment.Clinic)...), nil
	}
	clinics, err := d.next.FetchClinics(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(clinicsKey, clinics)
	return append([]appointment.Clinic(nil), clinics...), nil
}

func (d *CachedDirectory) FetchPractitioners(ctx context.Context, clinicID string) ([]appointment.Practitioner, error) {
	key := practitionersPrefix + clinicID
	if v, ok := d.cache.Get(key); ok {
		return append([]appointment.Practitioner(nil), v.([]appointment.Practitioner)...), nil
	}
	practitioners, err := d.next.FetchPractitioners(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(key, practitioners)
	return append([]appointment.Practitioner(nil), practitioners...), nil
}

// Flush drops every cached collection.
func (d *CachedDirectory) Flush() {
	d.cache.Flush()
}
