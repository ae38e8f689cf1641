package utils

import (
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/scythe504/werewolf-backend/internal"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// ClientIDCookie is the cookie that carries a client's id between the
// stream and post requests.
const ClientIDCookie = "id"

// ResolveClientID reads the client id cookie. A missing or malformed cookie
// yields a fresh id; fresh reports whether the caller should set it.
func ResolveClientID(r *http.Request) (id internal.ClientID, fresh bool) {
	c, err := r.Cookie(ClientIDCookie)
	if err == nil {
		if id, err := internal.ParseClientID(c.Value); err == nil && !id.IsZero() {
			return id, false
		}
	}
	return internal.NewClientID(), true
}

// GamePath is the path shared by a session's stream and post endpoints.
func GamePath(name string) string {
	return "/games/" + url.PathEscape(name)
}

// ClientIDCookieFor scopes the id cookie to a session's path so the SSE
// stream, posts and the websocket (a sub-path) all send it.
func ClientIDCookieFor(id internal.ClientID, name string) *http.Cookie {
	return &http.Cookie{
		Name:     ClientIDCookie,
		Value:    id.String(),
		Path:     GamePath(name),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// BuildRoleDeck returns n shuffled role names: every selected role repeated
// by its count, with the remainder filled by the default role.
func BuildRoleDeck(selection map[string]int, n int) ([]string, error) {
	total := 0
	for role, count := range selection {
		if strings.TrimSpace(role) == "" {
			return nil, errors.New("role name must not be empty")
		}
		if count < 0 {
			return nil, errors.Newf("role %q has negative count %d", role, count)
		}
		total += count
	}
	if total > n {
		return nil, errors.Newf("selected %d roles for %d players", total, n)
	}

	// Deterministic order before shuffling so the deck only depends on the RNG.
	roles := lo.Keys(selection)
	slices.Sort(roles)

	deck := make([]string, 0, n)
	for _, role := range roles {
		deck = append(deck, lo.RepeatBy(selection[role], func(int) string { return role })...)
	}
	for len(deck) < n {
		deck = append(deck, internal.DefaultRole)
	}

	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck, nil
}
