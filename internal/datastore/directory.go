package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/omniface/omniface-go/internal/errors"
)

// DefaultDirectoryTTL is how long person and department lookups are reused
const DefaultDirectoryTTL = 60 * time.Second

// missing is cached for labels without a person row so unknown registrations
// do not hit the database on every frame.
type missing struct{}

// Directory is a read-through cache over the person and department lookups
// performed for every recognised face.
type Directory struct {
	store Interface
	cache *cache.Cache
}

// NewDirectory wraps store with a TTL cache. ttl <= 0 uses DefaultDirectoryTTL.
func NewDirectory(store Interface, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &Directory{
		store: store,
		cache: cache.New(ttl, ttl*2),
	}
}

func personKey(tenantID uint, label string) string {
	return fmt.Sprintf("person:%d:%s", tenantID, label)
}

func departmentKey(tenantID, id uint) string {
	return fmt.Sprintf("dept:%d:%d", tenantID, id)
}

// Person resolves an index label. A label with no person row yields nil, nil.
func (d *Directory) Person(ctx context.Context, tenantID uint, label string) (*Person, error) {
	key := personKey(tenantID, label)
	if cached, found := d.cache.Get(key); found {
		if p, ok := cached.(*Person); ok {
			return p, nil
		}
		return nil, nil
	}

	p, err := d.store.FindPersonByLabel(ctx, tenantID, label)
	if err != nil {
		if errors.IsNotFound(err) {
			d.cache.Set(key, missing{}, cache.DefaultExpiration)
			return nil, nil
		}
		return nil, err
	}
	d.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

// Department resolves a department id. A nil id or a missing row yields nil, nil.
func (d *Directory) Department(ctx context.Context, tenantID uint, id *uint) (*Department, error) {
	if id == nil {
		return nil, nil
	}

	key := departmentKey(tenantID, *id)
	if cached, found := d.cache.Get(key); found {
		if dept, ok := cached.(*Department); ok {
			return dept, nil
		}
		return nil, nil
	}

	dept, err := d.store.GetDepartment(ctx, tenantID, *id)
	if err != nil {
		if errors.IsNotFound(err) {
			d.cache.Set(key, missing{}, cache.DefaultExpiration)
			return nil, nil
		}
		return nil, err
	}
	d.cache.Set(key, dept, cache.DefaultExpiration)
	return dept, nil
}

// Flush drops every cached lookup, used after a model reload
func (d *Directory) Flush() {
	d.cache.Flush()
}
