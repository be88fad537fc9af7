package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"geotrigger/core"
)

// Directory persists the user and venue registry to a single JSON file.
// Suitable for demos and small deployments where venues are curated by hand;
// the operational stores (memory, redis, sql) are seeded from it at startup.
type Directory struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	users  map[core.UserID]core.User
	venues map[core.VenueID]core.Venue
}

// Target is any store the directory can be seeded into.
type Target interface {
	PutUser(ctx context.Context, u *core.User) error
	PutVenue(ctx context.Context, v *core.Venue) error
}

type fileFormat struct {
	Users  []core.User  `json:"users"`
	Venues []core.Venue `json:"venues"`
}

// New opens the directory file at path, creating an empty directory when the
// file does not exist yet.
func New(path string) (*Directory, error) {
	d := &Directory{
		path:   path,
		users:  map[core.UserID]core.User{},
		venues: map[core.VenueID]core.Venue{},
	}
	if err := d.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return d, nil
}

func (d *Directory) load() error {
	b, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	var raw fileFormat
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse directory file %s: %w", d.path, err)
	}
	for _, u := range raw.Users {
		d.users[u.ID] = u
	}
	for _, v := range raw.Venues {
		d.venues[v.ID] = v
	}
	return nil
}

func (d *Directory) persist() error {
	raw := fileFormat{
		Users:  make([]core.User, 0, len(d.users)),
		Venues: make([]core.Venue, 0, len(d.venues)),
	}
	for _, u := range d.users {
		raw.Users = append(raw.Users, u)
	}
	for _, v := range d.venues {
		raw.Venues = append(raw.Venues, v)
	}
	sort.Slice(raw.Users, func(i, j int) bool { return raw.Users[i].ID < raw.Users[j].ID })
	sort.Slice(raw.Venues, func(i, j int) bool { return raw.Venues[i].ID < raw.Venues[j].ID })

	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}

func (d *Directory) PutUser(_ context.Context, u *core.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = *u
	return d.persist()
}

func (d *Directory) PutVenue(_ context.Context, v *core.Venue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.venues[v.ID] = *v
	return d.persist()
}

func (d *Directory) FindUserByID(_ context.Context, id core.UserID) (*core.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *Directory) FindVenueByID(_ context.Context, id core.VenueID) (*core.Venue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.venues[id]; ok {
		return &v, nil
	}
	return nil, nil
}

// Venues returns all registered venues sorted by ID.
func (d *Directory) Venues() []core.Venue {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.Venue, 0, len(d.venues))
	for _, v := range d.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seed copies every user and venue into the target store.
func (d *Directory) Seed(ctx context.Context, target Target) error {
	d.mu.Lock()
	users := make([]core.User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	venues := make([]core.Venue, 0, len(d.venues))
	for _, v := range d.venues {
		venues = append(venues, v)
	}
	d.mu.Unlock()

	for i := range users {
		if err := target.PutUser(ctx, &users[i]); err != nil {
			return fmt.Errorf("seed user %s: %w", users[i].ID, err)
		}
	}
	for i := range venues {
		if err := target.PutVenue(ctx, &venues[i]); err != nil {
			return fmt.Errorf("seed venue %s: %w", venues[i].ID, err)
		}
	}
	return nil
}
