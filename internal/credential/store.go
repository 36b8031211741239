package credential

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/keywarden/internal/directory"
	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Store persists passkey records through the user directory's versioned
// preference contract. Concurrent writers are serialized by the directory's
// optimistic concurrency retry loop.
type Store struct {
	dir   directory.Store
	clock func() time.Time
}

// NewStore wires a credential store over the given directory.
func NewStore(dir directory.Store) *Store {
	return &Store{dir: dir, clock: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// List returns the user's records ordered by creation time, oldest first.
// Records with equal timestamps order by ID so listings are stable.
func (s *Store) List(ctx context.Context, userID string) ([]Record, error) {
	prefs, err := directory.Load(ctx, s.dir, userID)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(prefs.Values)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns a single record by credential ID.
func (s *Store) Get(ctx context.Context, userID, credentialID string) (Record, error) {
	prefs, err := directory.Load(ctx, s.dir, userID)
	if err != nil {
		return Record{}, err
	}
	records, err := decodeRecords(prefs.Values)
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[credentialID]
	if !ok {
		return Record{}, errors.WithMetadata(errors.CodeCredentialUnknown, "credential not registered", map[string]string{
			"credential_id": credentialID,
		})
	}
	return rec, nil
}

// Add registers a new record. The credential ID must not already exist for
// the user. Empty names are replaced with a date-based default; explicit
// names are validated.
func (s *Store) Add(ctx context.Context, userID string, rec Record) (Record, error) {
	if rec.Name == "" {
		rec.Name = DefaultName(s.clock())
	} else {
		name, err := normalizeName(rec.Name)
		if err != nil {
			return Record{}, err
		}
		rec.Name = name
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.clock().UnixMilli()
	}
	err := s.mutate(ctx, userID, func(records map[string]Record) error {
		if _, exists := records[rec.ID]; exists {
			return errors.WithMetadata(errors.CodeCredentialDuplicate, "credential already registered", map[string]string{
				"credential_id": rec.ID,
			})
		}
		records[rec.ID] = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Rename sets a user-assigned name on the record.
func (s *Store) Rename(ctx context.Context, userID, credentialID, name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(records map[string]Record) error {
		rec, ok := records[credentialID]
		if !ok {
			return unknownCredential(credentialID)
		}
		rec.Name = name
		records[credentialID] = rec
		return nil
	})
}

// SetStatus applies a status transition. Transitions follow the explicit
// state machine; compromised is terminal.
func (s *Store) SetStatus(ctx context.Context, userID, credentialID string, status Status) error {
	if !ValidStatus(status) {
		return errors.WithMetadata(errors.CodeCredentialInvalidTransition, "unknown credential status", map[string]string{
			"status": string(status),
		})
	}
	return s.mutate(ctx, userID, func(records map[string]Record) error {
		rec, ok := records[credentialID]
		if !ok {
			return unknownCredential(credentialID)
		}
		if !CanTransition(rec.Status, status) {
			return invalidTransition(rec.Status, status)
		}
		rec.Status = status
		records[credentialID] = rec
		return nil
	})
}

// Delete removes a record. Deleting the user's only active credential is
// refused unless the caller attests another sign-in method exists, so an
// account cannot strand itself.
func (s *Store) Delete(ctx context.Context, userID, credentialID string, hasAlternateAuth bool) error {
	return s.mutate(ctx, userID, func(records map[string]Record) error {
		rec, ok := records[credentialID]
		if !ok {
			return unknownCredential(credentialID)
		}
		if rec.Status == StatusActive && !hasAlternateAuth && activeCount(records) == 1 {
			return errors.New(errors.CodeCredentialLastActive, "cannot delete the only active passkey")
		}
		delete(records, credentialID)
		return nil
	})
}

// UpdateCounter stores a new signature counter. Counters must strictly
// increase; a regression signals a cloned authenticator and is rejected.
// Authenticators that never increment report zero persistently and are
// exempt from the check.
func (s *Store) UpdateCounter(ctx context.Context, userID, credentialID string, counter uint32) error {
	return s.mutate(ctx, userID, func(records map[string]Record) error {
		rec, ok := records[credentialID]
		if !ok {
			return unknownCredential(credentialID)
		}
		if counter == 0 && rec.Counter == 0 {
			return nil
		}
		if counter <= rec.Counter {
			return errors.WithMetadata(errors.CodeCredentialCounterRegression, "signature counter regression", map[string]string{
				"credential_id": credentialID,
			})
		}
		rec.Counter = counter
		records[credentialID] = rec
		return nil
	})
}

// MarkUsed records the time of a successful assertion.
func (s *Store) MarkUsed(ctx context.Context, userID, credentialID string) error {
	now := s.clock().UnixMilli()
	return s.mutate(ctx, userID, func(records map[string]Record) error {
		rec, ok := records[credentialID]
		if !ok {
			return unknownCredential(credentialID)
		}
		rec.LastUsedAt = &now
		records[credentialID] = rec
		return nil
	})
}

// HasActive reports whether the user has at least one active credential.
func (s *Store) HasActive(ctx context.Context, userID string) (bool, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Status == StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) mutate(ctx context.Context, userID string, fn func(map[string]Record) error) error {
	return directory.Update(ctx, s.dir, userID, func(values map[string]string) error {
		records, err := decodeRecords(values)
		if err != nil {
			return err
		}
		if err := fn(records); err != nil {
			return err
		}
		encoded, err := json.Marshal(records)
		if err != nil {
			return errors.Wrap(errors.CodePersistence, "encode passkey records", err)
		}
		values[directory.KeyPasskeys] = string(encoded)
		return nil
	})
}

func decodeRecords(values map[string]string) (map[string]Record, error) {
	raw, ok := values[directory.KeyPasskeys]
	if !ok || raw == "" {
		return map[string]Record{}, nil
	}
	var records map[string]Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, errors.Wrap(errors.CodePersistence, "decode passkey records", err)
	}
	if records == nil {
		records = map[string]Record{}
	}
	return records, nil
}

// normalizeName trims the user-supplied name and validates the result. The
// trimmed form is what gets stored.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.CodeCredentialNameInvalid, "passkey name cannot be empty")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", errors.WithMetadata(errors.CodeCredentialNameInvalid, "passkey name too long", map[string]string{
			"max_length": "50",
		})
	}
	return name, nil
}

func unknownCredential(credentialID string) error {
	return errors.WithMetadata(errors.CodeCredentialUnknown, "credential not registered", map[string]string{
		"credential_id": credentialID,
	})
}

func activeCount(records map[string]Record) int {
	n := 0
	for _, rec := range records {
		if rec.Status == StatusActive {
			n++
		}
	}
	return n
}
