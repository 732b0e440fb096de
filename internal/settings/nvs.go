package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// NVS namespaces.
const (
	NamespaceSettings = "pod_settings"
	NamespaceCreds    = "puck_creds"
	NamespaceAuth     = "puck_auth"
)

// NVS is a namespaced key/value store backed by SQLite.
type NVS struct {
	db *sql.DB
}

// OpenNVS opens (creating if needed) the key/value database at path.
func OpenNVS(path string) (*NVS, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create nvs directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open nvs: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &NVS{db: db}, nil
}

// Close closes the database.
func (n *NVS) Close() error {
	if n == nil || n.db == nil {
		return nil
	}
	return n.db.Close()
}

// Get returns the value for key in ns and whether it was present.
func (n *NVS) Get(ns, key string) (string, bool, error) {
	var v string
	err := n.db.QueryRow(`SELECT value FROM kv WHERE namespace = ? AND key = ?`, ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("nvs get %s/%s: %w", ns, key, err)
	}
	return v, true, nil
}

// GetAll returns every key in ns.
func (n *NVS) GetAll(ns string) (map[string]string, error) {
	rows, err := n.db.Query(`SELECT key, value FROM kv WHERE namespace = ?`, ns)
	if err != nil {
		return nil, fmt.Errorf("nvs read %s: %w", ns, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("nvs scan %s: %w", ns, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Put stores one key.
func (n *NVS) Put(ns, key, value string) error {
	return n.PutAll(ns, map[string]string{key: value})
}

// PutAll stores several keys in one transaction.
func (n *NVS) PutAll(ns string, kv map[string]string) error {
	tx, err := n.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("nvs begin: %w", err)
	}
	for k, v := range kv {
		if _, err := tx.Exec(`INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`, ns, k, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("nvs put %s/%s: %w", ns, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("nvs commit %s: %w", ns, err)
	}
	return nil
}

// Remove deletes one key.
func (n *NVS) Remove(ns, key string) error {
	if _, err := n.db.Exec(`DELETE FROM kv WHERE namespace = ? AND key = ?`, ns, key); err != nil {
		return fmt.Errorf("nvs remove %s/%s: %w", ns, key, err)
	}
	return nil
}

// Erase deletes every key in ns.
func (n *NVS) Erase(ns string) error {
	if _, err := n.db.Exec(`DELETE FROM kv WHERE namespace = ?`, ns); err != nil {
		return fmt.Errorf("nvs erase %s: %w", ns, err)
	}
	return nil
}

// Settings keys in NamespaceSettings.
const (
	keyPlatform    = "platform"
	keyInvert      = "invert"
	keyAudio       = "audio"
	keyInterval    = "interval"
	keyFullEvery   = "fullEvery"
	keyTimezone    = "tz"
	keyOHEnabled   = "oh_en"
	keyOHStartHour = "oh_sh"
	keyOHStartMin  = "oh_sm"
	keyOHEndHour   = "oh_eh"
	keyOHEndMin    = "oh_em"
	keyOHDays      = "oh_days"
	keyLightType   = "light_type"
	keyLightHost   = "light_ip"
	keyLightBright = "light_bright"
	keyLightTopic  = "light_topic"
)

// NVSSettings stores Settings in NamespaceSettings. Missing keys load as
// their defaults.
type NVSSettings struct {
	NVS *NVS
}

// Load reads settings from the namespace.
func (s NVSSettings) Load() (Settings, error) {
	kv, err := s.NVS.GetAll(NamespaceSettings)
	if err != nil {
		return Settings{}, err
	}
	out := Default()
	if v, ok := kv[keyPlatform]; ok {
		if p, err := ParsePlatform(v); err == nil {
			out.Platform = p
		}
	}
	out.InvertDisplay = getBool(kv, keyInvert, out.InvertDisplay)
	out.AudioAlerts = getBool(kv, keyAudio, out.AudioAlerts)
	out.PresenceInterval = getInt(kv, keyInterval, out.PresenceInterval)
	out.FullRefreshEvery = getInt(kv, keyFullEvery, out.FullRefreshEvery)
	if v, ok := kv[keyTimezone]; ok {
		out.Timezone = v
	}
	out.OfficeHours.Enabled = getBool(kv, keyOHEnabled, out.OfficeHours.Enabled)
	out.OfficeHours.StartHour = getInt(kv, keyOHStartHour, out.OfficeHours.StartHour)
	out.OfficeHours.StartMin = getInt(kv, keyOHStartMin, out.OfficeHours.StartMin)
	out.OfficeHours.EndHour = getInt(kv, keyOHEndHour, out.OfficeHours.EndHour)
	out.OfficeHours.EndMin = getInt(kv, keyOHEndMin, out.OfficeHours.EndMin)
	out.OfficeHours.Days = uint8(getInt(kv, keyOHDays, int(out.OfficeHours.Days)))
	if v, ok := kv[keyLightType]; ok {
		out.Light.Type = LightType(v)
	}
	if v, ok := kv[keyLightHost]; ok {
		out.Light.Host = v
	}
	out.Light.Brightness = getInt(kv, keyLightBright, out.Light.Brightness)
	if v, ok := kv[keyLightTopic]; ok {
		out.Light.Topic = v
	}
	out.Normalize()
	return out, nil
}

// Save writes every settings field to the namespace.
func (s NVSSettings) Save(st Settings) error {
	return s.NVS.PutAll(NamespaceSettings, map[string]string{
		keyPlatform:    st.Platform.String(),
		keyInvert:      strconv.FormatBool(st.InvertDisplay),
		keyAudio:       strconv.FormatBool(st.AudioAlerts),
		keyInterval:    strconv.Itoa(st.PresenceInterval),
		keyFullEvery:   strconv.Itoa(st.FullRefreshEvery),
		keyTimezone:    st.Timezone,
		keyOHEnabled:   strconv.FormatBool(st.OfficeHours.Enabled),
		keyOHStartHour: strconv.Itoa(st.OfficeHours.StartHour),
		keyOHStartMin:  strconv.Itoa(st.OfficeHours.StartMin),
		keyOHEndHour:   strconv.Itoa(st.OfficeHours.EndHour),
		keyOHEndMin:    strconv.Itoa(st.OfficeHours.EndMin),
		keyOHDays:      strconv.Itoa(int(st.OfficeHours.Days)),
		keyLightType:   string(st.Light.Type),
		keyLightHost:   st.Light.Host,
		keyLightBright: strconv.Itoa(st.Light.Brightness),
		keyLightTopic:  st.Light.Topic,
	})
}

func getBool(kv map[string]string, key string, def bool) bool {
	v, ok := kv[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(kv map[string]string, key string, def int) int {
	v, ok := kv[key]
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
