package models

// Inbound websocket event types.
const (
	EventSendDirectMessage  = "send_direct_message"
	EventSendChannelMessage = "send_channel_message"
	EventJoinChannel        = "join_channel"
	EventLeaveChannel       = "leave_channel"
)

// Outbound websocket event types.
const (
	EventMessageReceived = "message_received"
	EventAck             = "ack"
	EventTypeError       = "error"
	EventChannelUpdated  = "channel_updated"
	EventRoomLeft        = "room_left"
)

// Error codes carried by an EventTypeError event.
const (
	ErrorCodeValidation = "validation"
	ErrorCodeNotFound   = "not_found"
	ErrorCodeForbidden  = "forbidden"
	ErrorCodeInternal   = "internal"
)

// ClientEvent is read from a websocket connection.
type ClientEvent struct {
	Type        string      `json:"type"`
	Ref         string      `json:"ref,omitempty"`
	RecipientID string      `json:"recipient_id,omitempty"`
	ChannelID   string      `json:"channel_id,omitempty"`
	MessageType MessageType `json:"message_type,omitempty"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"file_url,omitempty"`
}

// Payload extracts the message payload carried by a send event.
func (e ClientEvent) Payload() Payload {
	return Payload{Type: e.MessageType, Content: e.Content, FileURL: e.FileURL}
}

// ServerEvent is written to websocket connections.
type ServerEvent struct {
	Type    string         `json:"type"`
	Ref     string         `json:"ref,omitempty"`
	Message *Message       `json:"message,omitempty"`
	Channel *ChannelUpdate `json:"channel,omitempty"`
	Error   *EventError    `json:"error,omitempty"`
}

// EventError reports a failed client action to the originating connection.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Channel update actions.
const (
	ChannelCreated       = "created"
	ChannelMembersAdded  = "members_added"
	ChannelMemberRemoved = "member_removed"
	ChannelMemberLeft    = "member_left"
	ChannelAdminChanged  = "admin_changed"
	ChannelDeleted       = "deleted"
)

// Reasons carried in the Action of a room_left event.
const (
	RoomEvicted = "evicted"
	RoomClosed  = "closed"
)

// ChannelUpdate notifies participants about membership changes.
type ChannelUpdate struct {
	ChannelID string   `json:"channel_id"`
	Action    string   `json:"action"`
	Name      string   `json:"name,omitempty"`
	AdminID   string   `json:"admin_id,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
}
