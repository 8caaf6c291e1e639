package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// SessionManager orchestrates cookie based sessions backed by Redis. Cookie
// values are signed so forged ids are rejected before touching Redis. Every
// authenticated session is also indexed per user so all of a user's sessions
// can be revoked at once.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID         string
	values     map[string]string
	identity   *rbac.Identity
	previousID string
	isNew      bool
	dirty      bool
	destroyed  bool
}

type sessionPayload struct {
	Values   map[string]string `json:"values"`
	Identity *rbac.Identity    `json:"identity,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// New returns a fresh anonymous session.
func (sm *SessionManager) New() *Session {
	return &Session{
		ID:     sm.generateSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

// Load loads the session referenced by the request cookie or creates a new one.
// An unknown or expired cookie yields a fresh anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.New(), nil
		}
		return nil, err
	}
	id, ok := sm.verifyCookie(cookie.Value)
	if !ok {
		return sm.New(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.New(), nil
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}

	sess := &Session{
		ID:       id,
		values:   stored.Values,
		identity: stored.Identity,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.remove(ctx, sess.ID, sess.identity); err != nil {
			return err
		}
		sm.clearCookie(w)
		return nil
	}

	if sess.previousID != "" {
		if err := sm.remove(ctx, sess.previousID, sess.identity); err != nil {
			return err
		}
		sess.previousID = ""
	}

	if !sess.dirty && !sess.isNew {
		return nil
	}
	// Anonymous sessions with nothing stored are not worth persisting.
	if sess.identity == nil && len(sess.values) == 0 {
		return nil
	}

	data, err := json.Marshal(sessionPayload{Values: sess.values, Identity: sess.identity})
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	key := sm.redisKey(sess.ID)
	if !sess.isNew {
		// Loaded sessions are rewritten only while their key exists; a
		// revoked session stays revoked.
		stored, err := sm.client.SetXX(ctx, key, data, sm.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("session: store: %w", err)
		}
		if !stored {
			sess.dirty = false
			sess.destroyed = true
			sm.clearCookie(w)
			return nil
		}
	}

	pipe := sm.client.TxPipeline()
	if sess.isNew {
		pipe.Set(ctx, key, data, sm.ttl)
	}
	if sess.identity != nil {
		index := sm.userKey(sess.identity.UserID)
		pipe.SAdd(ctx, index, sess.ID)
		pipe.Expire(ctx, index, sm.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	sess.dirty = false
	sess.isNew = false

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sm.signCookie(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Renew rotates the session identifier, discarding the old one on commit.
// Called on privilege changes such as login.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew && sess.previousID == "" {
		sess.previousID = sess.ID
	}
	sess.ID = sm.generateSessionID()
	sess.isNew = true
	sess.dirty = true
}

// RevokeUser deletes every session belonging to userID.
func (sm *SessionManager) RevokeUser(ctx context.Context, userID int64) (int, error) {
	index := sm.userKey(userID)
	ids, err := sm.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("session: list user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sm.redisKey(id))
	}
	keys = append(keys, index)
	if err := sm.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("session: revoke user sessions: %w", err)
	}
	return len(ids), nil
}

func (sm *SessionManager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) remove(ctx context.Context, id string, identity *rbac.Identity) error {
	pipe := sm.client.TxPipeline()
	pipe.Del(ctx, sm.redisKey(id))
	if identity != nil {
		pipe.SRem(ctx, sm.userKey(identity.UserID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: remove: %w", err)
	}
	return nil
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetIdentity stores the authorization snapshot for the signed-in user.
func (s *Session) SetIdentity(id *rbac.Identity) {
	s.identity = id
	s.dirty = true
}

// Identity returns the stored snapshot or nil for anonymous sessions.
func (s *Session) Identity() *rbac.Identity {
	if s == nil {
		return nil
	}
	return s.identity
}

// User returns the current user ID as a string, empty when anonymous.
func (s *Session) User() string {
	if s == nil || s.identity == nil {
		return ""
	}
	return strconv.FormatInt(s.identity.UserID, 10)
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) userKey(userID int64) string {
	return "user_sessions:" + strconv.FormatInt(userID, 10)
}

func (sm *SessionManager) generateSessionID() string {
	return uuid.NewString()
}

func (sm *SessionManager) signature(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) signCookie(id string) string {
	return id + "." + sm.signature(id)
}

func (sm *SessionManager) verifyCookie(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(sm.signature(id))) {
		return "", false
	}
	return id, true
}
