// Package classify maps raw Telegram updates to the event kinds and message
// categories the session scheduler works with. Every function is total.
package classify

import tele "gopkg.in/telebot.v4"

// EventKind is the coarse type of an inbound update.
type EventKind int

const (
	// KindNone is the zero value and never produced by Kind.
	KindNone EventKind = iota
	// KindNewMessage covers new messages and new channel posts.
	KindNewMessage
	// KindEditedMessage covers edited messages and edited channel posts.
	KindEditedMessage
	// KindCallbackQuery is an inline button click.
	KindCallbackQuery
	// KindOtherUpdate is everything else, including membership changes.
	KindOtherUpdate
)

var kindNames = [...]string{"none", "new_message", "edited_message", "callback_query", "other_update"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MsgCategory groups message payload variants.
type MsgCategory int

const (
	CategoryOther MsgCategory = iota
	CategoryText
	CategoryMediaOrDoc
	CategoryStickerOrDice
	CategorySharing
	CategoryChatStatus
	CategoryVideoChat
)

var categoryNames = [...]string{"other", "text", "media_or_doc", "sticker_or_dice", "sharing", "chat_status", "video_chat"}

func (c MsgCategory) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// ChatCategory selects the top-level handler entry point.
type ChatCategory int

const (
	ChatOther ChatCategory = iota
	ChatPrivate
	ChatGroup
	ChatChannel
)

var chatCategoryNames = [...]string{"other", "private", "group", "channel"}

func (c ChatCategory) String() string {
	if c < 0 || int(c) >= len(chatCategoryNames) {
		return "unknown"
	}
	return chatCategoryNames[c]
}

// Kind reports the event kind of upd. Channel posts count as messages,
// member updates and unknown payloads as KindOtherUpdate.
func Kind(upd tele.Update) EventKind {
	switch {
	case upd.Message != nil:
		return KindNewMessage
	case upd.EditedMessage != nil:
		return KindEditedMessage
	case upd.ChannelPost != nil:
		return KindNewMessage
	case upd.EditedChannelPost != nil:
		return KindEditedMessage
	case upd.Callback != nil:
		return KindCallbackQuery
	default:
		return KindOtherUpdate
	}
}

// Message extracts the message carried by upd. For callbacks it is the
// message the button is attached to, which is nil for inline-mode buttons.
func Message(upd tele.Update) *tele.Message {
	switch {
	case upd.Message != nil:
		return upd.Message
	case upd.EditedMessage != nil:
		return upd.EditedMessage
	case upd.ChannelPost != nil:
		return upd.ChannelPost
	case upd.EditedChannelPost != nil:
		return upd.EditedChannelPost
	case upd.Callback != nil:
		return upd.Callback.Message
	}
	return nil
}

// Chat resolves the chat an update belongs to, or nil for chat-less updates.
func Chat(upd tele.Update) *tele.Chat {
	if msg := Message(upd); msg != nil {
		return msg.Chat
	}
	switch {
	case upd.MyChatMember != nil:
		return upd.MyChatMember.Chat
	case upd.ChatMember != nil:
		return upd.ChatMember.Chat
	}
	return nil
}

// Sender returns the user that triggered upd, if known.
func Sender(upd tele.Update) *tele.User {
	switch {
	case upd.Callback != nil:
		return upd.Callback.Sender
	case upd.MyChatMember != nil:
		return upd.MyChatMember.Sender
	case upd.ChatMember != nil:
		return upd.ChatMember.Sender
	}
	if msg := Message(upd); msg != nil {
		return msg.Sender
	}
	return nil
}

// CallbackData returns the raw data of a callback update.
func CallbackData(upd tele.Update) string {
	if upd.Callback == nil {
		return ""
	}
	return upd.Callback.Data
}

// LeftChat reports whether upd tells that the bot left or was kicked from the chat.
func LeftChat(upd tele.Update) bool {
	m := upd.MyChatMember
	if m == nil || m.NewChatMember == nil {
		return false
	}
	return m.NewChatMember.Role == tele.Left || m.NewChatMember.Role == tele.Kicked
}

// ChatCategoryOf maps a Telegram chat type to the handler entry category.
func ChatCategoryOf(chat *tele.Chat) ChatCategory {
	if chat == nil {
		return ChatOther
	}
	switch chat.Type {
	case tele.ChatPrivate:
		return ChatPrivate
	case tele.ChatGroup, tele.ChatSuperGroup:
		return ChatGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return ChatChannel
	}
	return ChatOther
}

// Category maps a message payload to its category. nil maps to CategoryOther.
func Category(msg *tele.Message) MsgCategory {
	switch {
	case msg == nil:
		return CategoryOther
	case msg.Text != "":
		return CategoryText
	case msg.Photo != nil, msg.Audio != nil, msg.Video != nil, msg.Voice != nil,
		msg.Document != nil, msg.VideoNote != nil, msg.Animation != nil:
		return CategoryMediaOrDoc
	case msg.Sticker != nil, msg.Dice != nil:
		return CategoryStickerOrDice
	case msg.Location != nil, msg.Contact != nil, msg.Venue != nil, msg.Game != nil,
		msg.Invoice != nil, msg.Payment != nil, msg.ConnectedWebsite != "":
		return CategorySharing
	case isChatStatus(msg):
		return CategoryChatStatus
	case msg.VideoChatScheduled != nil, msg.VideoChatStarted != nil,
		msg.VideoChatEnded != nil, msg.VideoChatParticipants != nil:
		return CategoryVideoChat
	}
	return CategoryOther
}

func isChatStatus(msg *tele.Message) bool {
	return msg.UserJoined != nil || len(msg.UsersJoined) > 0 || msg.UserLeft != nil ||
		msg.NewGroupTitle != "" || msg.NewGroupPhoto != nil || msg.PinnedMessage != nil ||
		msg.GroupPhotoDeleted || msg.GroupCreated || msg.SuperGroupCreated || msg.ChannelCreated ||
		msg.MigrateTo != 0 || msg.MigrateFrom != 0
}
