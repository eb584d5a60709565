package dispatch

import "time"

type Kind string

const (
	KindAIFlag    Kind = "ai_flag"
	KindRaidMode  Kind = "raid_mode"
	KindImageSpam Kind = "image_spam"
	KindAutoRole  Kind = "auto_role"
)

// Decision is an engine outcome waiting to be enforced. Only the fields that
// matter for Kind are set.
type Decision struct {
	Kind    Kind
	GuildID string
	UserID  string
	Score   int
	Count   int
	Link    string
	RoleID  string
	Timeout time.Duration
}

func AIFlag(guildID, userID string, score int, link string) Decision {
	return Decision{Kind: KindAIFlag, GuildID: guildID, UserID: userID, Score: score, Link: link}
}

func RaidModeActivated(guildID string, joins int) Decision {
	return Decision{Kind: KindRaidMode, GuildID: guildID, Count: joins}
}

func ImageSpam(guildID, userID string, images int, timeout time.Duration) Decision {
	return Decision{Kind: KindImageSpam, GuildID: guildID, UserID: userID, Count: images, Timeout: timeout}
}

func AutoRole(guildID, userID, roleID string) Decision {
	return Decision{Kind: KindAutoRole, GuildID: guildID, UserID: userID, RoleID: roleID}
}
