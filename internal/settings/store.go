package settings

import (
	"errors"
	"fmt"
	"log"
	"strconv"
)

// Store loads and saves Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// Fallback prefers the SD card file and falls back to NVS. Saves go to both.
type Fallback struct {
	Primary   Store
	Secondary Store
}

// Load returns the primary settings, else the secondary, else defaults.
func (f Fallback) Load() (Settings, error) {
	if f.Primary != nil {
		s, err := f.Primary.Load()
		if err == nil {
			log.Printf("settings: loaded from SD card")
			return s, nil
		}
		log.Printf("settings: SD card unavailable (%v), using NVS", err)
	}
	if f.Secondary != nil {
		s, err := f.Secondary.Load()
		if err == nil {
			return s, nil
		}
		log.Printf("settings: NVS load failed: %v", err)
	}
	log.Printf("settings: using defaults")
	return Default(), nil
}

// Save writes to every store that accepts it. It fails only when none did.
func (f Fallback) Save(s Settings) error {
	var errs []error
	saved := 0
	for _, st := range []Store{f.Primary, f.Secondary} {
		if st == nil {
			continue
		}
		if err := st.Save(s); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if saved == 0 {
		return fmt.Errorf("save settings: %w", errors.Join(errs...))
	}
	return nil
}

// Credential keys in NamespaceCreds.
const (
	keySSID         = "ssid"
	keyPassword     = "password"
	keyClientID     = "client_id"
	keyTenantID     = "tenant_id"
	keyClientSecret = "client_sec"
	keyPlatformSel  = "platform_s"
)

// Refresh token key in NamespaceAuth.
const keyRefreshToken = "refresh_tok"

// CredentialStore keeps provisioned credentials in NVS.
type CredentialStore struct {
	NVS *NVS
}

// HasStoredCredentials reports whether an SSID has been provisioned.
func (c CredentialStore) HasStoredCredentials() bool {
	v, ok, err := c.NVS.Get(NamespaceCreds, keySSID)
	if err != nil {
		log.Printf("settings: credential check: %v", err)
		return false
	}
	return ok && v != ""
}

// Load returns the stored credentials, or ErrNoCredentials.
func (c CredentialStore) Load() (Credentials, error) {
	kv, err := c.NVS.GetAll(NamespaceCreds)
	if err != nil {
		return Credentials{}, err
	}
	cr := Credentials{
		SSID:         kv[keySSID],
		Password:     kv[keyPassword],
		ClientID:     kv[keyClientID],
		TenantID:     kv[keyTenantID],
		ClientSecret: kv[keyClientSecret],
		Light: LightConfig{
			Type:  LightType(kv[keyLightType]),
			Host:  kv[keyLightHost],
			Topic: kv[keyLightTopic],
		},
	}
	if p, err := ParsePlatform(kv[keyPlatformSel]); err == nil {
		cr.Platform = p
	}
	if !cr.Valid() {
		return Credentials{}, ErrNoCredentials
	}
	return cr, nil
}

// Save stores the credentials.
func (c CredentialStore) Save(cr Credentials) error {
	if !cr.Valid() {
		return fmt.Errorf("save credentials: ssid is required")
	}
	return c.NVS.PutAll(NamespaceCreds, map[string]string{
		keySSID:         cr.SSID,
		keyPassword:     cr.Password,
		keyClientID:     cr.ClientID,
		keyTenantID:     cr.TenantID,
		keyClientSecret: cr.ClientSecret,
		keyPlatformSel:  strconv.Itoa(int(cr.Platform)),
		keyLightType:    string(cr.Light.Type),
		keyLightHost:    cr.Light.Host,
		keyLightTopic:   cr.Light.Topic,
	})
}

// Clear erases credentials and the stored auth session.
func (c CredentialStore) Clear() error {
	return errors.Join(c.NVS.Erase(NamespaceCreds), c.NVS.Erase(NamespaceAuth))
}

// TokenStore keeps the OAuth refresh token in NamespaceAuth.
type TokenStore struct {
	NVS *NVS
}

// RefreshToken returns the stored refresh token, empty when none.
func (t TokenStore) RefreshToken() (string, error) {
	v, _, err := t.NVS.Get(NamespaceAuth, keyRefreshToken)
	return v, err
}

// SaveRefreshToken persists a refresh token.
func (t TokenStore) SaveRefreshToken(token string) error {
	return t.NVS.Put(NamespaceAuth, keyRefreshToken, token)
}

// ClearRefreshToken removes the stored refresh token.
func (t TokenStore) ClearRefreshToken() error {
	return t.NVS.Remove(NamespaceAuth, keyRefreshToken)
}
