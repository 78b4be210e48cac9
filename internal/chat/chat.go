// Package chat describes transport-neutral inbound inputs and outbound replies.
package chat

// MediaKind names the kind of an attached file.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media is a file reference that can be resent without re-uploading.
type Media struct {
	Kind  MediaKind
	Token string
}

// Input is a single user message.
type Input interface {
	isInput()
}

// TextInput is a plain text message.
type TextInput struct {
	Text string
}

// MediaInput is a video or document with an optional caption.
type MediaInput struct {
	Media   Media
	Caption string
}

func (TextInput) isInput()  {}
func (MediaInput) isInput() {}

// Reply is a single outbound message.
type Reply interface {
	isReply()
}

// TextMessage is plain text.
type TextMessage struct {
	Text string
	// RemoveKeyboard hides the reply keyboard.
	RemoveKeyboard bool
}

// MediaMessage resends a stored file.
type MediaMessage struct {
	Media   Media
	Caption string
}

// MenuPrompt is text with a reply keyboard of option labels.
type MenuPrompt struct {
	Text    string
	Options [][]string
}

// SubscribePrompt asks the user to join channels and offers a re-check button.
type SubscribePrompt struct {
	Text     string
	Channels []string
}

func (TextMessage) isReply()     {}
func (MediaMessage) isReply()    {}
func (MenuPrompt) isReply()      {}
func (SubscribePrompt) isReply() {}

// Text builds a TextMessage.
func Text(s string) TextMessage { return TextMessage{Text: s} }
