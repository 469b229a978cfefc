package store

// User is a per-user record. Missing users read as a zero record with only
// the ID set.
type User struct {
	ID        int64  `db:"user_id"`
	Username  string `db:"username"`
	XP        int64  `db:"xp"`
	Banned    bool   `db:"banned"`
	BanReason string `db:"ban_reason"`
	BannedAt  int64  `db:"banned_at"`
	AFK       bool   `db:"afk"`
	AFKReason string `db:"afk_reason"`
	AFKSince  int64  `db:"afk_since"`
}

// Mention is a message in which an away user was tagged.
type Mention struct {
	ChatID    int64 `db:"chat_id"`
	MessageID int   `db:"message_id"`
}

// Chat holds the per-chat feature toggles.
type Chat struct {
	ID      int64 `db:"chat_id"`
	Captcha bool  `db:"captcha"`
	Events  bool  `db:"events"`
	Pokemon bool  `db:"pokemon"`
}

// Chat feature flags accepted by SetChatFlag and ChatsWith.
const (
	FlagCaptcha = "captcha"
	FlagEvents  = "events"
	FlagPokemon = "pokemon"
)

// MaxWarns is the warn count at which a member is removed.
const MaxWarns = 3

// Warning is one warn issued against a member.
type Warning struct {
	ChatID   int64
	UserID   int64
	UserName string
	Reason   string
	ByUserID int64
}

// Warn is a member's accumulated warns in a chat.
type Warn struct {
	ChatID   int64  `db:"chat_id"`
	UserID   int64  `db:"user_id"`
	UserName string `db:"user_name"`
	Count    int    `db:"count"`
	Reasons  []string
}

// ChatBan is an entry of a chat's banned list.
type ChatBan struct {
	ChatID   int64  `db:"chat_id"`
	UserID   int64  `db:"user_id"`
	UserName string `db:"user_name"`
	Reason   string `db:"reason"`
	ByUserID int64  `db:"by_user_id"`
}

// CommandState is the global enable switch of a command.
type CommandState struct {
	Name    string `db:"name"`
	Enabled bool   `db:"enabled"`
	Reason  string `db:"reason"`
}
