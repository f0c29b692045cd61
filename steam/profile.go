package steam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PersonaState is a user's Steam online status.
type PersonaState int

const (
	PersonaOffline PersonaState = iota
	PersonaOnline
	PersonaBusy
	PersonaAway
	PersonaSnooze
	PersonaLookingToTrade
	PersonaLookingToPlay
)

func (s PersonaState) String() string {
	switch s {
	case PersonaOffline:
		return "offline"
	case PersonaOnline:
		return "online"
	case PersonaBusy:
		return "busy"
	case PersonaAway:
		return "away"
	case PersonaSnooze:
		return "snooze"
	case PersonaLookingToTrade:
		return "looking to trade"
	case PersonaLookingToPlay:
		return "looking to play"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Avatar holds the URLs of a user's avatar image in each size Steam serves.
type Avatar struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// UserProfile is a Steam user's public profile.  A new UserProfile is built
// for every lookup; it's never cached or modified by this package.
type UserProfile struct {
	// ID is the user's 64-bit SteamID in decimal.
	ID string `json:"steamid"`

	// Username is the user's persona name.
	Username string `json:"username"`

	// DisplayName is the user's real name, nil when the profile omits it.
	DisplayName *string `json:"name"`

	// ProfileURL is the URL of the user's community profile.
	ProfileURL string `json:"profile"`

	Avatar Avatar `json:"avatar"`

	PersonaState PersonaState `json:"persona_state"`

	// Public is true when the profile's community visibility state is public.
	Public bool `json:"public"`

	// CountryCode is the ISO 3166 country code of the user, if set.
	CountryCode string `json:"country_code,omitempty"`

	// LastLogoff is when the user was last online, nil if not reported.
	LastLogoff *time.Time `json:"last_logoff,omitempty"`

	// Raw is the player summary exactly as the Web API returned it.
	Raw json.RawMessage `json:"_json"`
}

// communityVisibilityPublic is the communityvisibilitystate of a public
// profile.
const communityVisibilityPublic = 3

type playerSummary struct {
	PersonaName              string  `json:"personaname"`
	RealName                 *string `json:"realname"`
	ProfileURL               string  `json:"profileurl"`
	Avatar                   string  `json:"avatar"`
	AvatarMedium             string  `json:"avatarmedium"`
	AvatarFull               string  `json:"avatarfull"`
	PersonaState             int     `json:"personastate"`
	CommunityVisibilityState int     `json:"communityvisibilitystate"`
	LastLogoff               int64   `json:"lastlogoff"`
	LocCountryCode           string  `json:"loccountrycode"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []json.RawMessage `json:"players"`
	} `json:"response"`
}

// newUserProfile maps one player summary to a UserProfile.
func newUserProfile(steamID string, raw json.RawMessage) (*UserProfile, error) {
	const op = "steam.newUserProfile"
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("%s: player summary is not a JSON object", op)
	}
	var p playerSummary
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%s: unable to decode player summary: %w", op, err)
	}
	u := &UserProfile{
		ID:          steamID,
		Username:    p.PersonaName,
		DisplayName: p.RealName,
		ProfileURL:  p.ProfileURL,
		Avatar: Avatar{
			Small:  p.Avatar,
			Medium: p.AvatarMedium,
			Large:  p.AvatarFull,
		},
		PersonaState: PersonaState(p.PersonaState),
		Public:       p.CommunityVisibilityState == communityVisibilityPublic,
		CountryCode:  p.LocCountryCode,
		Raw:          append(json.RawMessage(nil), raw...),
	}
	if p.LastLogoff > 0 {
		t := time.Unix(p.LastLogoff, 0).UTC()
		u.LastLogoff = &t
	}
	return u, nil
}
