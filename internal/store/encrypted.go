package store

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/focusshift/shiftd/internal/domain"
)

const prefsDBName = "prefs.db"

// Document keys. The store is an opaque key-value document store; values are
// JSON-encoded.
const (
	keyBlockedApps    = "blocked_apps"
	keyBlockedDomains = "blocked_domains"
	keyFocusSession   = "focus_session"
	keySchedules      = "schedules"
)

// EncryptedStore implements domain.PreferenceStore using a SQLCipher
// encrypted SQLite database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
	clock  domain.Clock
}

// NewEncryptedStore opens (or creates) the encrypted preference database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, clock domain.Clock) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, prefsDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath, clock: clock}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Open is the common bootstrap: ensures a key exists and opens the store.
func Open(dataDir string, clock domain.Clock) (*EncryptedStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedStore(dataDir, key, clock)
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path (for status output and tests).
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

func (s *EncryptedStore) setDocument(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO documents (key, value, updated_at) VALUES (?, ?, ?)`,
		key, string(data), s.clock.Now().Unix())
	return err
}

// getDocument decodes the stored value into out. Returns false when the key
// is absent.
func (s *EncryptedStore) getDocument(key string, out any) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM documents WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *EncryptedStore) deleteDocument(key string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE key = ?`, key)
	return err
}

// BlockedApps returns the blocked bundle identifiers, seeding the defaults
// when nothing has been saved yet.
func (s *EncryptedStore) BlockedApps() ([]string, error) {
	var apps []string
	found, err := s.getDocument(keyBlockedApps, &apps)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultBlockedApps(), nil
	}
	return apps, nil
}

// SetBlockedApps replaces the blocked bundle identifier list.
func (s *EncryptedStore) SetBlockedApps(apps []string) error {
	return s.setDocument(keyBlockedApps, apps)
}

// BlockedDomains returns the blocked web domains, seeding the defaults when
// nothing has been saved yet.
func (s *EncryptedStore) BlockedDomains() ([]string, error) {
	var domains []string
	found, err := s.getDocument(keyBlockedDomains, &domains)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultBlockedDomains(), nil
	}
	return domains, nil
}

// SetBlockedDomains replaces the blocked domain list.
func (s *EncryptedStore) SetBlockedDomains(domains []string) error {
	return s.setDocument(keyBlockedDomains, domains)
}

// SaveFocusSession persists the active focus session.
func (s *EncryptedStore) SaveFocusSession(session domain.FocusSession) error {
	return s.setDocument(keyFocusSession, session)
}

// LoadFocusSession returns the persisted session, or nil if none. Expiry is
// the session guard's concern, not the store's.
func (s *EncryptedStore) LoadFocusSession() (*domain.FocusSession, error) {
	var session domain.FocusSession
	found, err := s.getDocument(keyFocusSession, &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &session, nil
}

// ClearFocusSession removes any persisted session.
func (s *EncryptedStore) ClearFocusSession() error {
	return s.deleteDocument(keyFocusSession)
}

// SaveSchedules replaces the persisted schedule list.
func (s *EncryptedStore) SaveSchedules(schedules []domain.Schedule) error {
	return s.setDocument(keySchedules, schedules)
}

// LoadSchedules returns all persisted schedules in insertion order.
func (s *EncryptedStore) LoadSchedules() ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	if _, err := s.getDocument(keySchedules, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// ClearAll wipes every stored document.
func (s *EncryptedStore) ClearAll() error {
	_, err := s.db.Exec(`DELETE FROM documents`)
	return err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements domain.PreferenceStore.
var _ domain.PreferenceStore = (*EncryptedStore)(nil)
