package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/kathakali/internal/retarget"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a profile name is already taken.
	ErrDuplicate = errors.New("duplicate name")
	// ErrInvalidProfile is returned for profiles that cannot be stored.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile is a named set of tracking settings.
type Profile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Settings  retarget.Settings `json:"settings"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

func (p *Profile) check() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if err := p.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

// Create inserts a new profile. An empty ID is filled with a new UUID.
func (r *ProfileRepository) Create(p *Profile) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	config, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO profiles (id, name, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(config), p.CreatedAt, p.UpdatedAt,
	)
	return mapConstraint(err)
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	return r.get(`SELECT id, name, config, created_at, updated_at FROM profiles WHERE id = ?`, id)
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	return r.get(`SELECT id, name, config, created_at, updated_at FROM profiles WHERE name = ?`, name)
}

func (r *ProfileRepository) get(query, arg string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(
		`SELECT id, name, config, created_at, updated_at
		 FROM profiles ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Update replaces the name and settings of an existing profile.
func (r *ProfileRepository) Update(p *Profile) error {
	if err := p.check(); err != nil {
		return err
	}
	config, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, config = ?, updated_at = ? WHERE id = ?`,
		p.Name, string(config), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(result)
}

// Delete removes a profile by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var config string
	if err := row.Scan(&p.ID, &p.Name, &config, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	// Fields missing from older rows keep their defaults.
	p.Settings = retarget.DefaultSettings()
	if err := json.Unmarshal([]byte(config), &p.Settings); err != nil {
		return nil, fmt.Errorf("profile %s: failed to decode settings: %w", p.ID, err)
	}
	return p, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}
